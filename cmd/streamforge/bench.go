package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrel-engine/streamforge"
	"github.com/kestrel-engine/streamforge/internal/assetmodel"
	"github.com/kestrel-engine/streamforge/internal/config"
)

func newBenchCmd() *cobra.Command {
	var frames int
	var speed float64
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Fly a scripted camera path over the staged assets and report stats",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runBench(frames, speed)
		},
	}
	cmd.Flags().IntVar(&frames, "frames", 600, "number of simulated frames")
	cmd.Flags().Float64Var(&speed, "speed", 20, "camera speed in world units per second")
	return cmd
}

// discoverAssets lists the staged asset ids under base's streaming
// directory.
func discoverAssets(base string) ([]assetmodel.ID, error) {
	dir := filepath.Join(base, "assets", "streaming")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("bench: %w", err)
	}
	var ids []assetmodel.ID
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".asset") {
			continue
		}
		raw, err := strconv.ParseUint(strings.TrimSuffix(name, ".asset"), 16, 64)
		if err != nil {
			continue
		}
		ids = append(ids, assetmodel.ID(raw))
	}
	return ids, nil
}

func runBench(frames int, speed float64) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	ids, err := discoverAssets(cfg.AssetBaseDir)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("bench: no staged assets; run `streamforge init --samples N` first")
	}

	engine, err := streamforge.New(cfg)
	if err != nil {
		return err
	}
	defer engine.Shutdown()

	// Scatter the assets along the flight path, 40 units apart and
	// alternating to either side, so each ring sweeps over them in turn.
	for i, id := range ids {
		side := float64(1 - 2*(i%2))
		engine.RegisterAsset(id, streamforge.Point{
			X: float64(i) * 40,
			Z: side * 25,
		}, 5)
	}

	const dt = 1.0 / 60.0
	start := time.Now()
	pos := streamforge.Point{}
	vel := streamforge.Point{X: speed}
	for f := 0; f < frames; f++ {
		pos.X += vel.X * dt
		engine.Update(pos, vel, dt)
		time.Sleep(time.Millisecond)
	}
	elapsed := time.Since(start)

	snap := engine.GetStats()
	mem := engine.GetMemoryStats()
	fmt.Printf("bench: %d frames over %d assets in %s\n", frames, len(ids), elapsed.Round(time.Millisecond))
	fmt.Printf("  requests: total=%d completed=%d failed=%d\n", snap.TotalRequests, snap.Completed, snap.Failed)
	fmt.Printf("  cache:    hits=%d misses=%d\n", snap.CacheHits, snap.CacheMisses)
	fmt.Printf("  bytes:    loaded=%d evicted=%d\n", snap.BytesLoaded, snap.BytesEvicted)
	fmt.Printf("  memory:   used=%d available=%d fragmentation=%.1f%%\n", mem.Used, mem.Available, mem.Fragmentation*100)
	fmt.Printf("  load:     avg=%s peak=%s\n", snap.AverageLoadTime, snap.PeakLoadTime)
	return nil
}
