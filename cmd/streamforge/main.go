// Command streamforge runs the asset streaming engine against a staged
// asset directory (or object-storage mirror) and exposes its admin and
// development surfaces.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "streamforge",
		Short: "Asset streaming engine: concurrent cache, prefetcher, and I/O pipeline",
		Long: `streamforge serves a multi-gigabyte asset world under a fixed memory
budget with bounded-latency frame updates. It maintains an LRU-evicted
resident set, prefetches along the camera path through concentric
streaming rings, pages virtual textures, and defragments its pool under
pressure.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config (defaults apply if omitted)")

	root.AddCommand(newInitCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newStatCmd())
	root.AddCommand(newDumpCmd())
	root.AddCommand(newBenchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
