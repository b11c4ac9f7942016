package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/gurre/amc-etl/aws"
	"github.com/gurre/amc-etl/config"
	"github.com/gurre/amc-etl/jobrecord"
	"github.com/gurre/amc-etl/logger"
	"github.com/gurre/amc-etl/metrics"
	"github.com/gurre/amc-etl/objectstore"
	"github.com/gurre/amc-etl/pipeline"
	"github.com/gurre/s3streamer"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "AMC_ETL"

// awsClients are only created when the job touches S3 or DynamoDB.
type awsClients struct {
	s3       aws.S3Client
	streamer s3streamer.Streamer
	dynamodb aws.DynamoDBClient
}

type awsLoader func(ctx context.Context, region string) (awsClients, error)

func loadAWS(ctx context.Context, region string) (awsClients, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return awsClients{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	raw := s3.NewFromConfig(cfg)
	return awsClients{
		s3:       raw,
		streamer: s3streamer.NewS3Streamer(raw),
		dynamodb: dynamodb.NewFromConfig(cfg),
	}, nil
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(loadAWS)
}

func newRootCmdWith(load awsLoader) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "amc-etl",
		Short:        "Normalize, hash and partition a dataset for AMC upload",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfigFile(v, v.GetString("config")); err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, v, load)
		},
	}

	f := cmd.Flags()
	f.StringP("config", "c", "", ".env, .yaml or .json file with job parameters")
	f.String("source", "", "Source object: s3://bucket/key, file:// URI or local path")
	f.String("output", "", "Output location: s3://bucket[/prefix] or local directory")
	f.String("dataset-id", "", "Dataset identifier")
	f.String("update-strategy", "ADDITIVE", "Update strategy written into the output keys")
	f.String("file-format", "", "JSON or CSV (derived from the source when empty)")
	f.String("country-code", "", "Country of the PII values; empty skips normalization")
	f.String("pii-fields", "", `PII columns as JSON, e.g. [{"column_name":"email","pii_type":"EMAIL"}]`)
	f.String("deleted-fields", "", "Columns to drop, JSON array or comma separated")
	f.String("targets", "", "AMC instance ids or endpoint URLs, JSON array or comma separated")
	f.String("caller-id", "", "Identifier of the requesting user")
	f.String("timestamp-column", "", "Timestamp column; makes the dataset a time series")
	f.String("period", "autodetect", "Time bucket width: autodetect, PT1M, PT1H, P1D or P7D")
	f.String("region", "", "AWS region (defaults to the SDK's resolution)")
	f.String("metrics-table", "", "DynamoDB table that receives the run's performance metrics")
	f.String("metrics-textfile", "", "Write Prometheus metrics to this file")
	f.Int64("partition-bytes", config.DefaultPartitionBytes, "Source size above which output is split")
	f.Int("chunk-size", config.DefaultChunkSize, "Rows read from the source at a time")
	f.BoolP("verbose", "v", false, "Enable debug logging")
	f.Bool("dry-run", false, "Process the dataset but keep the output in memory")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(f)
	return cmd
}

// loadConfigFile reads job parameters from a file. A .env file is loaded
// into the environment, where the AMC_ETL_ variables are picked up; any other
// file is read by viper. Without a file, ./.env is loaded if present.
func loadConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	if filepath.Ext(path) == ".env" {
		return godotenv.Load(path)
	}
	v.SetConfigFile(path)
	return v.ReadInConfig()
}

func jobFromViper(v *viper.Viper) (config.Job, error) {
	pii, err := config.ParseFields(v.GetString("pii-fields"))
	if err != nil {
		return config.Job{}, err
	}
	deleted, err := config.ParseList(v.GetString("deleted-fields"))
	if err != nil {
		return config.Job{}, err
	}
	targets, err := config.ParseList(v.GetString("targets"))
	if err != nil {
		return config.Job{}, err
	}
	return config.Job{
		Source:          v.GetString("source"),
		Output:          v.GetString("output"),
		DatasetID:       v.GetString("dataset-id"),
		UpdateStrategy:  v.GetString("update-strategy"),
		FileFormat:      v.GetString("file-format"),
		CountryCode:     v.GetString("country-code"),
		PIIFields:       pii,
		DeletedFields:   deleted,
		Targets:         targets,
		CallerID:        v.GetString("caller-id"),
		TimestampColumn: v.GetString("timestamp-column"),
		Period:          v.GetString("period"),
		Region:          v.GetString("region"),
		MetricsTable:    v.GetString("metrics-table"),
		MetricsTextfile: v.GetString("metrics-textfile"),
		PartitionBytes:  v.GetInt64("partition-bytes"),
		ChunkSize:       v.GetInt("chunk-size"),
		DryRun:          v.GetBool("dry-run"),
	}, nil
}

// summary is printed to stdout when the job succeeds.
type summary struct {
	RunID       string         `json:"runId"`
	Report      metrics.Report `json:"report"`
	Partitions  int            `json:"partitions"`
	Granularity string         `json:"granularity,omitempty"`
	Files       []string       `json:"files"`
	Manifests   []string       `json:"manifests"`
}

func run(ctx context.Context, cmd *cobra.Command, v *viper.Viper, load awsLoader) error {
	job, err := jobFromViper(v)
	if err != nil {
		return err
	}
	if err := job.Validate(); err != nil {
		return err
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), v.GetBool("verbose"))

	var clients awsClients
	if objectstore.IsS3URI(job.Source) || (!job.DryRun && objectstore.IsS3URI(job.Output)) || job.MetricsTable != "" {
		if clients, err = load(ctx, job.Region); err != nil {
			return err
		}
	}

	var source objectstore.Source
	if objectstore.IsS3URI(job.Source) {
		source, err = objectstore.NewS3Source(clients.s3, clients.streamer, job.Source)
	} else {
		source, err = objectstore.NewFileSource(job.Source)
	}
	if err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}

	var sink objectstore.Sink
	switch {
	case job.DryRun:
		sink = objectstore.NewMemoryStore()
	case objectstore.IsS3URI(job.Output):
		sink, err = objectstore.NewS3Sink(clients.s3, job.Output)
	default:
		sink, err = objectstore.NewFileSink(job.Output)
	}
	if err != nil {
		return fmt.Errorf("invalid output: %w", err)
	}

	var recorder jobrecord.Recorder = jobrecord.NoopRecorder{}
	if job.MetricsTable != "" {
		recorder = jobrecord.NewDynamoDBRecorder(clients.dynamodb, job.MetricsTable, jobrecord.WithLogger(log))
	}

	p := pipeline.New(job, source, sink, recorder, log)
	outcome, err := p.Run(ctx)
	if err != nil {
		return err
	}

	out := summary{
		RunID:       p.RunID(),
		Report:      outcome.Report,
		Partitions:  outcome.Result.Partitions,
		Granularity: string(outcome.Result.Granularity),
		Files:       make([]string, 0, len(outcome.Result.Files)),
		Manifests:   outcome.Result.Manifests,
	}
	for _, f := range outcome.Result.Files {
		out.Files = append(out.Files, f.Location)
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
