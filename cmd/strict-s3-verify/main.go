package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/location"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/logger"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/report"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/s3client"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/storage"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/verifier"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

const (
	exitOK            = 0
	exitError         = 1
	exitDiscrepancies = 2
)

// errDiscrepancies signals a completed run that found mismatched or missing
// objects.
var errDiscrepancies = errors.New("discrepancies found")

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strict-s3-verify --manifest <location>",
		Short: "Verify that copied object trees match their origin",
		Long: `strict-s3-verify reads a manifest of origin and destination roots, fingerprints
every object on both sides and reports origin objects that are missing or
differ at the destination.`,
		Version:       fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, viper.New())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	registerFlags(cmd)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil && !errors.Is(err, errDiscrepancies) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errDiscrepancies):
		return exitDiscrepancies
	default:
		return exitError
	}
}

func run(ctx context.Context, cfg *verifyConfig) error {
	log := logger.New(os.Stderr, cfg.log)

	backend, err := newBackend(ctx, cfg, log)
	if err != nil {
		return err
	}

	v := verifier.New(backend, log, verifier.Options{
		Algorithm:       cfg.digest,
		Concurrency:     cfg.concurrency,
		PairConcurrency: cfg.pairConcurrency,
		Excludes:        cfg.excludes,
		FailFast:        cfg.failFast,
	})

	summary, err := v.RunManifest(ctx, cfg.manifest)
	if err != nil {
		return err
	}

	if err := writeReport(ctx, backend, cfg.output, report.Text(summary)); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if cfg.resultJSONFile != "" {
		if err := writeResult(ctx, backend, cfg.resultJSONFile, summary); err != nil {
			return fmt.Errorf("failed to write result JSON: %w", err)
		}
	}

	if failed := summary.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d pairs failed", len(failed), len(summary.Pairs))
	}
	if summary.HasDiscrepancies() {
		return errDiscrepancies
	}
	return nil
}

// newBackend routes s3:// locations to S3, gs:// locations to the Cloud
// Storage interoperability endpoint and everything else to the local
// filesystem.
func newBackend(ctx context.Context, cfg *verifyConfig, log *slog.Logger) (*storage.Router, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg.profile, cfg.region)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	gcsCfg := awsCfg
	if cfg.gcsProfile != "" {
		gcsCfg, err = loadAWSConfig(ctx, cfg.gcsProfile, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load GCS HMAC profile: %w", err)
		}
	}

	s3Client := s3client.NewAWSClient(awsCfg, s3client.Config{
		EndpointURL: cfg.endpointURL,
		MaxRetries:  cfg.maxRetries,
		Timeout:     cfg.timeout,
	})
	gcsClient := s3client.NewAWSClient(gcsCfg, s3client.GCSConfig(cfg.gcsEndpointURL, cfg.maxRetries, cfg.timeout))

	return newRouter(s3Client, gcsClient, storage.NewOSBackend(log), log), nil
}

func loadAWSConfig(ctx context.Context, profile, region string) (aws.Config, error) {
	var configOpts []func(*config.LoadOptions) error
	if profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		configOpts = append(configOpts, config.WithRegion(region))
	}
	return config.LoadDefaultConfig(ctx, configOpts...)
}

func newRouter(s3Client, gcsClient s3client.Client, local storage.Backend, log *slog.Logger) *storage.Router {
	router := storage.NewRouter()
	router.Register(location.SchemeS3, storage.NewS3Backend(s3Client, log))
	router.Register(location.SchemeGS, storage.NewS3Backend(gcsClient, log.With("store", "gcs")))
	router.Register(location.SchemeFile, local)
	return router
}

func writeReport(ctx context.Context, backend storage.Backend, output location.Ref, text string) error {
	if output.IsZero() {
		if text != "" {
			fmt.Println(text)
		}
		return nil
	}
	return backend.Write(ctx, output, []byte(text), "text/plain")
}

func writeResult(ctx context.Context, backend storage.Backend, raw string, summary *verifier.Summary) error {
	ref, err := location.Parse(raw)
	if err != nil {
		return err
	}

	data, err := report.JSON(summary)
	if err != nil {
		return err
	}

	return backend.Write(ctx, ref, data, "application/json")
}
