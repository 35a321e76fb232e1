// Package cmd implements the exrtool commands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/vearutop/exr"
)

var (
	version = "0.1.0"
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "exrtool",
	Short: "Inspect and verify OpenEXR files",
	Long: `exrtool reads OpenEXR files with the pure-Go exr package.

It prints headers, lists chunks with content digests and checks that
every chunk of every part decodes.`,
	Version:      version,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"exrtool %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
}

// logVerbose prints a message only when --verbose is set.
func logVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[exrtool] "+format+"\n", args...)
	}
}

func openFile(name string, reconstruct bool) (*exr.Reader, error) {
	logVerbose("open %s", name)

	return exr.OpenFile(name, func(o *exr.ReadOptions) {
		o.ReconstructOffsets = reconstruct
		if verbose {
			o.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	})
}
