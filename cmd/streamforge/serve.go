package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/kestrel-engine/streamforge"
	"github.com/kestrel-engine/streamforge/internal/config"
	"github.com/kestrel-engine/streamforge/internal/httpapi"
	"github.com/kestrel-engine/streamforge/internal/logger"
	"github.com/kestrel-engine/streamforge/internal/reader"
	"github.com/kestrel-engine/streamforge/internal/webui"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with its admin API and development web UI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// buildBackend constructs the configured asset resolver backend.
func buildBackend(ctx context.Context, cfg *config.Config) (reader.Backend, error) {
	switch cfg.AssetBackend {
	case "", "local":
		return reader.NewLocalBackend(cfg.AssetBaseDir), nil

	case "s3":
		loadOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.S3Region),
		}
		if cfg.S3AccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("serve: aws config: %w", err)
		}
		return reader.NewS3Backend(s3.NewFromConfig(awsCfg), cfg.S3Bucket), nil

	case "azure":
		client, err := azblob.NewClientWithNoCredential(cfg.AzureServiceURL, &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Telemetry: policy.TelemetryOptions{ApplicationID: "streamforge"},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("serve: azure client: %w", err)
		}
		return reader.NewAzureBackend(client, cfg.AzureContainer), nil

	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("serve: gcs client: %w", err)
		}
		return reader.NewGCSBackend(client, cfg.GCSBucket), nil
	}
	return nil, fmt.Errorf("serve: unknown asset_backend %q", cfg.AssetBackend)
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	backend, err := buildBackend(ctx, cfg)
	if err != nil {
		return err
	}

	engine, err := streamforge.New(cfg, streamforge.WithBackend(backend))
	if err != nil {
		return err
	}
	defer engine.Shutdown()

	if cfg.AdminAddr != "" {
		admin := httpapi.New(engine, []byte(cfg.AdminSecret))
		go func() {
			logger.Info("admin API listening on %s", cfg.AdminAddr)
			if err := http.ListenAndServe(cfg.AdminAddr, admin); err != nil {
				logger.Error("admin API: %v", err)
			}
		}()
	}
	if cfg.WebUIAddr != "" {
		ui := webui.New(engine)
		go func() {
			logger.Info("web UI listening on %s", cfg.WebUIAddr)
			if err := http.ListenAndServe(cfg.WebUIAddr, ui); err != nil {
				logger.Error("web UI: %v", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	// Drive the per-frame update at 60 Hz with a stationary camera; a
	// real host replaces this loop with its own frame callback.
	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()

	logger.Info("engine running, budget=%d bytes, workers=%d", cfg.MemoryBudgetBytes, cfg.WorkerThreads)
	for {
		select {
		case <-ticker.C:
			engine.Update(streamforge.Point{}, streamforge.Point{}, 1.0/60.0)
		case <-sig:
			logger.Info("shutting down")
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
