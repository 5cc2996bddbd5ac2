package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yuya-takeyama/strict-s3-verify/internal/checksum"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/location"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/logger"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/reconcile"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/s3client"
)

const envPrefix = "STRICT_S3_VERIFY"

type verifyConfig struct {
	manifest        location.Ref
	output          location.Ref // zero: print to stdout
	digest          checksum.Algorithm
	excludes        []string
	concurrency     int
	pairConcurrency int
	failFast        bool
	resultJSONFile  string
	log             logger.Options
	profile         string
	region          string
	endpointURL     string
	gcsEndpointURL  string
	gcsProfile      string
	timeout         time.Duration
	maxRetries      int
}

func registerFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.SortFlags = false
	flags.String("manifest", "", "Tab-separated file of origin and destination roots (required)")
	flags.String("output", "", "Where to write the report (stdout if not specified)")
	flags.String("bucket", "", "Bucket (name or s3://, gs:// location) holding the manifest and output when they are given as bare keys")
	flags.String("digest", string(checksum.MD5), "Digest algorithm: md5, sha256 or crc64nvme")
	flags.StringSlice("exclude", nil, "Exclude patterns matched against relative keys (multiple allowed)")
	flags.Int("concurrency", 32, "Number of concurrent fingerprint operations per root")
	flags.Int("pair-concurrency", 4, "Number of root pairs verified concurrently")
	flags.Bool("fail-fast", false, "Abort the whole run on the first failing pair")
	flags.String("result-json-file", "", "Path to output result as JSON file")
	flags.Bool("quiet", false, "Only log warnings and errors")
	flags.Bool("verbose", false, "Log debug output")
	flags.String("log-format", string(logger.FormatAuto), "Log format: auto, text or json")
	flags.String("profile", "", "AWS profile to use")
	flags.String("region", "", "AWS region (uses default if not specified)")
	flags.String("endpoint-url", "", "Custom S3 endpoint URL (path-style addressing is used)")
	flags.String("gcs-endpoint-url", s3client.GCSEndpointURL, "Endpoint for gs:// locations (Cloud Storage XML API)")
	flags.String("gcs-profile", "", "AWS profile holding the GCS HMAC key for gs:// locations (defaults to --profile)")
	flags.Duration("timeout", 0, "Timeout per storage request attempt (0 disables)")
	flags.Int("max-retries", s3client.DefaultMaxRetries, "Maximum retries per storage request")
	cmd.PersistentFlags().StringP("config", "c", "", "Config file (yaml, json or toml)")
}

// loadConfig merges flags, STRICT_S3_VERIFY_* environment variables and the
// optional config file, in that order of precedence.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*verifyConfig, error) {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		v.SetConfigFile(configFilePath)
		if err := v.ReadInConfig(); err != nil {
			enoent := errors.Is(err, os.ErrNotExist)
			var notFound viper.ConfigFileNotFoundError
			if enoent || errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file not found: %s", configFilePath)
			}
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := &verifyConfig{
		excludes:        v.GetStringSlice("exclude"),
		concurrency:     v.GetInt("concurrency"),
		pairConcurrency: v.GetInt("pair-concurrency"),
		failFast:        v.GetBool("fail-fast"),
		resultJSONFile:  v.GetString("result-json-file"),
		log: logger.Options{
			Quiet:   v.GetBool("quiet"),
			Verbose: v.GetBool("verbose"),
		},
		profile:        v.GetString("profile"),
		region:         v.GetString("region"),
		endpointURL:    v.GetString("endpoint-url"),
		gcsEndpointURL: v.GetString("gcs-endpoint-url"),
		gcsProfile:     v.GetString("gcs-profile"),
		timeout:        v.GetDuration("timeout"),
		maxRetries:     v.GetInt("max-retries"),
	}

	bucket := v.GetString("bucket")

	rawManifest := v.GetString("manifest")
	if rawManifest == "" {
		return nil, fmt.Errorf("--manifest is required")
	}
	manifestRef, err := resolveRef(rawManifest, bucket)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest location: %w", err)
	}
	cfg.manifest = manifestRef

	if rawOutput := v.GetString("output"); rawOutput != "" {
		outputRef, err := resolveRef(rawOutput, bucket)
		if err != nil {
			return nil, fmt.Errorf("invalid output location: %w", err)
		}
		cfg.output = outputRef
	}

	cfg.digest, err = checksum.ParseAlgorithm(v.GetString("digest"))
	if err != nil {
		return nil, err
	}

	cfg.log.Format, err = logger.ParseFormat(v.GetString("log-format"))
	if err != nil {
		return nil, err
	}

	if err := reconcile.ValidatePatterns(cfg.excludes); err != nil {
		return nil, err
	}

	if cfg.concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive")
	}
	if cfg.pairConcurrency <= 0 {
		return nil, fmt.Errorf("pair-concurrency must be positive")
	}
	if cfg.maxRetries < 0 {
		return nil, fmt.Errorf("max-retries must not be negative")
	}

	return cfg, nil
}

// resolveRef parses raw as a location. With a bucket set, a bare relative
// name such as "paths.tsv" is a key inside that bucket. The bucket may carry
// a scheme and prefix, as in gs://archive/manifests.
func resolveRef(raw, bucket string) (location.Ref, error) {
	if bucket == "" || strings.Contains(raw, "://") || filepath.IsAbs(raw) {
		return location.Parse(raw)
	}
	if !strings.Contains(bucket, "://") {
		bucket = "s3://" + bucket
	}
	base, err := location.Parse(bucket)
	if err != nil {
		return location.Ref{}, err
	}
	if !base.InBucket() {
		return location.Ref{}, fmt.Errorf("bucket must be an object store location: %s", bucket)
	}
	return base.Join(raw), nil
}
