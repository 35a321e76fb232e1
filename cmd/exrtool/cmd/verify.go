package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var verifyReconstruct bool

var verifyCmd = &cobra.Command{
	Use:   "verify <file.exr>...",
	Short: "Decode every chunk of every part and report failures",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyReconstruct, "reconstruct", false, "rebuild damaged offset tables")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(_ *cobra.Command, args []string) error {
	failed := 0

	for _, name := range args {
		bad, err := verifyFile(name)
		if err != nil {
			fmt.Printf("FAIL  %s: %v\n", name, err)
			failed++

			continue
		}

		if bad > 0 {
			fmt.Printf("FAIL  %s: %d bad chunks\n", name, bad)
			failed++

			continue
		}

		fmt.Printf("OK    %s\n", name)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}

	return nil
}

func verifyFile(name string) (int, error) {
	r, err := openFile(name, verifyReconstruct)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	bad := 0

	for _, p := range r.Parts() {
		for i := 0; i < p.ChunkCount(); i++ {
			if _, err := p.ReadChunk(i); err != nil {
				logVerbose("%s: part %d chunk %d: %v", name, p.Index(), i, err)
				bad++
			}
		}
	}

	if bad == 0 && r.NumParts() == 0 {
		return 0, errors.New("no parts")
	}

	return bad, nil
}
