package main

import (
	"fmt"
	"log"

	"github.com/arkilian/abgen/internal/app"
	"github.com/arkilian/abgen/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runFlags holds the raw values of the command flags. Only flags the user set
// override file and environment configuration.
type runFlags struct {
	configFile        string
	envFile           string
	numRecords        int
	output            string
	seed              uint64
	distSeed          uint64
	workers           int
	partitions        bool
	partitionStrategy string
	publish           bool
	skipExisting      bool
	storageType       string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "abgen",
		Short:         "Generate a synthetic A/B checkout experiment dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newGenerateCmd(), newFetchCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "abgen version %s (commit: %s)\n", version, commit)
		},
	}
}

func newGenerateCmd() *cobra.Command {
	f := &runFlags{}
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the session table and write it as CSV",
		Long: `Generate samples users, timestamps, devices and checkout outcomes for a
two-arm experiment (multi-step vs single-page checkout) and writes one CSV row
per session. Fixed seeds produce byte-identical output.

Environment variables use the ABGEN_ prefix, e.g. ABGEN_NUM_RECORDS,
ABGEN_SEED_GENERAL, ABGEN_STORAGE_S3_BUCKET.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}

			res, err := a.Run(cmd.Context())
			if err != nil {
				return err
			}

			log.Printf("Run %s: %d records, %d partitions, %d objects published",
				res.RunID, res.Summary.Records, len(res.Partitions), len(res.Published))
			return nil
		},
	}

	flags := cmd.Flags()
	bindDatasetFlags(flags, f, defaults)
	flags.IntVar(&f.workers, "workers", defaults.Workers, "Goroutines resolving outcomes")
	flags.BoolVar(&f.partitions, "partitions", defaults.Partition.Enabled, "Also write SQLite partitions")
	flags.StringVar(&f.partitionStrategy, "partition-strategy", defaults.Partition.Strategy, "Partition split: day, group, none")
	flags.BoolVar(&f.publish, "publish", defaults.Publish.Enabled, "Upload outputs to object storage")
	flags.BoolVar(&f.skipExisting, "skip-existing", defaults.Publish.SkipExisting, "Keep objects that are already published")

	return cmd
}

func newFetchCmd() *cobra.Command {
	f := &runFlags{}
	defaults := config.DefaultConfig()
	var runID, dest string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the published objects of a run",
		Long: `Fetch lists the objects published under <prefix>/<run-id>/ and downloads
them into the destination directory. Without --run-id the run is identified by
the seeds and record count, so the same flags as generate select its output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}

			paths, err := a.Fetch(cmd.Context(), runID, dest)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	bindDatasetFlags(flags, f, defaults)
	flags.StringVar(&runID, "run-id", "", "Run to fetch (default: derived from seeds and record count)")
	flags.StringVarP(&dest, "dest", "d", ".", "Destination directory")

	return cmd
}

// bindDatasetFlags registers the flags that identify a dataset and where it
// is stored.
func bindDatasetFlags(flags *pflag.FlagSet, f *runFlags, defaults *config.Config) {
	flags.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flags.StringVar(&f.envFile, "env-file", ".env", "Dotenv file exported before reading ABGEN_ variables")
	flags.IntVarP(&f.numRecords, "num-records", "n", defaults.NumRecords, "Number of sessions to generate")
	flags.StringVarP(&f.output, "output", "o", defaults.OutputPath, "Output CSV path")
	flags.Uint64Var(&f.seed, "seed", defaults.Seeds.General, "Seed of the general random stream")
	flags.Uint64Var(&f.distSeed, "dist-seed", defaults.Seeds.Distribution, "Seed of the distribution random stream")
	flags.StringVar(&f.storageType, "storage", defaults.Storage.Type, "Storage type: local, s3")
}

// loadConfig layers defaults, the config file, the environment (including the
// dotenv file) and the flags the user set, in that order.
func loadConfig(cmd *cobra.Command, f *runFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configFile != "" {
		loaded, err := config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := config.LoadDotEnv(f.envFile); err != nil {
		return nil, err
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("num-records") {
		cfg.NumRecords = f.numRecords
	}
	if flags.Changed("output") {
		cfg.OutputPath = f.output
	}
	if flags.Changed("seed") {
		cfg.Seeds.General = f.seed
	}
	if flags.Changed("dist-seed") {
		cfg.Seeds.Distribution = f.distSeed
	}
	if flags.Changed("workers") {
		cfg.Workers = f.workers
	}
	if flags.Changed("partitions") {
		cfg.Partition.Enabled = f.partitions
	}
	if flags.Changed("partition-strategy") {
		cfg.Partition.Strategy = f.partitionStrategy
	}
	if flags.Changed("publish") {
		cfg.Publish.Enabled = f.publish
	}
	if flags.Changed("skip-existing") {
		cfg.Publish.SkipExisting = f.skipExisting
	}
	if flags.Changed("storage") {
		cfg.Storage.Type = f.storageType
	}

	return cfg, nil
}
