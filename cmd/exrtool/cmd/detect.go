package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vearutop/exr"
)

var detectCmd = &cobra.Command{
	Use:   "detect <file>",
	Short: "Report whether a file starts with a supported OpenEXR signature",
	Args:  cobra.ExactArgs(1),
	RunE:  runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
}

func runDetect(_ *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	ok, err := exr.IsEXR(f)
	if err != nil {
		return err
	}

	fmt.Println(ok)

	return nil
}
