package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vearutop/exr"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info <file.exr>",
	Short: "Print the version flags and headers of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "print JSON")
	rootCmd.AddCommand(infoCmd)
}

type partInfo struct {
	Index       int               `json:"index"`
	Name        string            `json:"name,omitempty"`
	DataWindow  string            `json:"dataWindow"`
	Compression string            `json:"compression"`
	LineOrder   string            `json:"lineOrder"`
	Channels    []string          `json:"channels"`
	Tiles       string            `json:"tiles,omitempty"`
	Levels      int               `json:"levels"`
	Chunks      int               `json:"chunks"`
	Gamut       string            `json:"gamut"`
	Attributes  map[string]string `json:"attributes"`
}

type fileInfo struct {
	Version   uint32     `json:"version"`
	MultiPart bool       `json:"multiPart"`
	Parts     []partInfo `json:"parts"`
}

func describe(r *exr.Reader) fileInfo {
	fi := fileInfo{Version: r.Version(), MultiPart: r.IsMultiPart()}

	for _, p := range r.Parts() {
		h := p.Header()
		l := p.Layout()

		pi := partInfo{
			Index:       p.Index(),
			Name:        h.Name(),
			DataWindow:  l.DataWindow().String(),
			Compression: l.Compression().String(),
			LineOrder:   l.LineOrder().String(),
			Levels:      len(l.Levels()),
			Chunks:      l.ChunkCount(),
			Gamut:       exr.GamutName(h.Chromaticities()),
			Attributes:  make(map[string]string, h.Len()),
		}

		for _, ch := range l.Channels() {
			pi.Channels = append(pi.Channels, fmt.Sprintf("%s:%s %dx%d", ch.Name, ch.Type, ch.XSampling, ch.YSampling))
		}

		if l.Tiled() {
			td := l.TileDescription()
			pi.Tiles = fmt.Sprintf("%dx%d %s %s", td.XSize, td.YSize, td.Mode, td.Rounding)
		}

		for _, a := range h.Attributes() {
			pi.Attributes[a.Name] = formatValue(a.Value)
		}

		fi.Parts = append(fi.Parts, pi)
	}

	return fi
}

func formatValue(v exr.Value) string {
	switch v := v.(type) {
	case exr.Preview:
		return fmt.Sprintf("%dx%d RGBA", v.Width, v.Height)
	case exr.Opaque:
		return fmt.Sprintf("%s, %d bytes", v.Type, len(v.Data))
	case exr.ChannelList:
		return fmt.Sprintf("%d channels", len(v))
	}

	return fmt.Sprintf("%v", v)
}

func runInfo(_ *cobra.Command, args []string) error {
	r, err := openFile(args[0], false)
	if err != nil {
		return err
	}
	defer r.Close()

	fi := describe(r)

	if infoJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(fi)
	}

	fmt.Printf("  Version:     %d (flags %#x)\n", fi.Version&0xff, fi.Version&^0xff)
	fmt.Printf("  Multi-part:  %v\n", fi.MultiPart)

	for _, p := range fi.Parts {
		fmt.Println()
		fmt.Printf("  Part %d %s\n", p.Index, p.Name)
		fmt.Printf("    Data window:  %s\n", p.DataWindow)
		fmt.Printf("    Compression:  %s\n", p.Compression)
		fmt.Printf("    Line order:   %s\n", p.LineOrder)
		if p.Tiles != "" {
			fmt.Printf("    Tiles:        %s, %d levels\n", p.Tiles, p.Levels)
		}
		fmt.Printf("    Chunks:       %d\n", p.Chunks)
		fmt.Printf("    Gamut:        %s\n", p.Gamut)
		fmt.Printf("    Channels:\n")
		for _, ch := range p.Channels {
			fmt.Printf("      %s\n", ch)
		}
		fmt.Printf("    Attributes:\n")
		for _, a := range r.Parts()[p.Index].Header().Attributes() {
			fmt.Printf("      %-20s %-16s %s\n", a.Name, a.Value.TypeName(), p.Attributes[a.Name])
		}
	}

	return nil
}
