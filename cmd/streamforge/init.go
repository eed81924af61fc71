package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
	"github.com/kestrel-engine/streamforge/internal/codec"
	"github.com/kestrel-engine/streamforge/internal/config"
)

func newInitCmd() *cobra.Command {
	var samples int
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Stage an asset directory and write a default config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(dir, samples)
		},
	}
	cmd.Flags().IntVar(&samples, "samples", 0, "number of sample assets to generate")
	return cmd
}

func runInit(dir string, samples int) error {
	assetDir := filepath.Join(dir, "assets", "streaming")
	if err := os.MkdirAll(assetDir, 0o755); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	cfg := config.Default()
	cfg.AssetBaseDir = dir
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("init: marshal config: %w", err)
	}
	cfgFile := filepath.Join(dir, "streamforge.yaml")
	if err := os.WriteFile(cfgFile, data, 0o644); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	for i := 0; i < samples; i++ {
		id := assetmodel.ID(0x1000 + uint64(i))
		if err := writeSampleAsset(assetDir, id); err != nil {
			return err
		}
	}

	fmt.Printf("initialized %s (%d sample assets, config %s)\n", assetDir, samples, cfgFile)
	return nil
}

// writeSampleAsset stages one two-LOD asset: LOD 0 uncompressed, LOD 1 a
// compressible repeating pattern stored with the LZ coder.
func writeSampleAsset(dir string, id assetmodel.ID) error {
	lod0 := make([]byte, 4096)
	for i := range lod0 {
		lod0[i] = byte(uint64(id) + uint64(i))
	}
	lod1 := bytes.Repeat([]byte{0xAB, 0xCD}, 1024)
	lod1c := codec.LZ{}.Encode(lod1)

	h := &assetmodel.Header{
		Version:          1,
		AssetID:          id,
		Type:             1,
		Compression:      assetmodel.CompressionNone,
		UncompressedSize: uint64(len(lod0) + len(lod1)),
		CompressedSize:   uint64(len(lod0) + len(lod1c)),
		Lods: []assetmodel.LodEntry{
			{
				DataOffset:     0,
				DataSize:       uint32(len(lod0)),
				CompressedSize: uint32(len(lod0)),
				Compression:    assetmodel.CompressionNone,
			},
			{
				DataOffset:     uint32(len(lod0)),
				DataSize:       uint32(len(lod1)),
				CompressedSize: uint32(len(lod1c)),
				Compression:    assetmodel.CompressionLZ4,
			},
		},
		Name: fmt.Sprintf("sample-%04x", uint64(id)),
	}

	var buf bytes.Buffer
	if err := assetmodel.WriteHeader(&buf, h); err != nil {
		return fmt.Errorf("init: sample %#x: %w", uint64(id), err)
	}
	buf.Write(lod0)
	buf.Write(lod1c)

	path := filepath.Join(dir, fmt.Sprintf("%016x.asset", uint64(id)))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("init: sample %#x: %w", uint64(id), err)
	}
	return nil
}
