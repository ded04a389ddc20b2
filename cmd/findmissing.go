package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/remora-tools/remora/cmd/internal/checkpoint"
	"github.com/remora-tools/remora/internal/ctxutil"
	"github.com/remora-tools/remora/pkg/config"
	"github.com/remora-tools/remora/pkg/radosgw"
	"github.com/remora-tools/remora/pkg/scrub"
	"github.com/remora-tools/remora/pkg/scrub/sqlrepo"
)

var findMissingFlags struct {
	buckets          []string
	statusOutput     string
	bucketsDB        string
	corruptedObjects string
	fix              bool
	fixIndex         bool
	dryRun           bool
}

var findMissingCmd = &cobra.Command{
	Use:   "find-missing <data-pool>",
	Short: "Find RGW objects whose backing RADOS objects are missing",
	Long: wordwrap.WrapString(
		"Differences the bucket indexes of an RGW zone against the RADOS "+
			"objects actually present in the given data pool and reports every "+
			"object with missing chunks. Such objects look fine in listings but "+
			"fail on read."+
			"\n\n"+
			"With --fix, each missing chunk is replaced by a zero-filled "+
			"placeholder of the recorded size, which makes the object readable "+
			"again (as zeroes) and deletable. With --fix-bucket-index the bucket "+
			"index entry is rewritten afterwards so its metadata matches the "+
			"repaired data. A dry run describes what either fix would do without "+
			"touching the cluster."+
			"\n\n"+
			"Point --processed-buckets-db at a file to make the scan resumable: "+
			"buckets recorded as done are skipped on the next run against the "+
			"same database.",
		80),
	Example: fmt.Sprintf("  %s rgw find-missing default.rgw.buckets.data -b images -f -i", rootCmd.Name()),
	Args:    cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool := cmd.Flags().Arg(0)

		cfg, err := config.Load[config.Config]()
		if err != nil {
			return err
		}

		backend, err := radosgw.New(pool)
		if err != nil {
			return err
		}

		statusWriter := cmd.ErrOrStderr()
		if findMissingFlags.statusOutput != "" {
			f, err := os.OpenFile(findMissingFlags.statusOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("opening status output %s: %w", findMissingFlags.statusOutput, err)
			}
			defer f.Close()
			statusWriter = f
		}

		repo, closeRepo, err := checkpoint.Open(ctx, findMissingFlags.bucketsDB)
		if err != nil {
			return err
		}
		defer closeRepo()
		if findMissingFlags.bucketsDB != "" {
			repo.StartPeriodicCheckpoint(ctx, sqlrepo.DefaultCheckpointInterval)
		}

		// With progress diverted to a file the terminal would sit silent
		// for the whole scan.
		if findMissingFlags.statusOutput != "" && isatty.IsTerminal(os.Stderr.Fd()) {
			s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr())) // Spinner: ⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏
			s.Suffix = fmt.Sprintf(" scanning pool %s", pool)
			s.Start()
			defer s.Stop()
		}

		opts := []scrub.Option{
			scrub.WithWorkers(cfg.Scan.Workers),
			scrub.WithMaxConcurrentIOs(cfg.Scan.MaxConcurrentIOs),
			scrub.WithMaxTries(cfg.Scan.MaxTries),
			scrub.WithStatusWriter(statusWriter),
		}
		if len(findMissingFlags.buckets) > 0 {
			opts = append(opts, scrub.WithBuckets(findMissingFlags.buckets))
		}
		if findMissingFlags.fix {
			opts = append(opts, scrub.WithRepairs())
		}
		if findMissingFlags.fixIndex {
			opts = append(opts, scrub.WithIndexRepairs())
		}
		if findMissingFlags.dryRun {
			opts = append(opts, scrub.WithDryRun())
		}
		if findMissingFlags.corruptedObjects != "" {
			opts = append(opts, scrub.WithArtifactName(findMissingFlags.corruptedObjects))
		}

		api := &scrub.API{Pool: pool, Repo: repo, Backend: backend}
		summary, runErr := api.Run(ctx, opts...)
		if summary != nil {
			printSummary(cmd, summary)
		}
		return ctxutil.ErrorWithCause(runErr, ctx)
	},
}

func printSummary(cmd *cobra.Command, s *scrub.Summary) {
	rate := "-"
	if s.Elapsed > 0 {
		rate = humanize.CommafWithDigits(float64(s.ObjectsScanned)/s.Elapsed.Seconds(), 0)
	}
	cmd.Printf("Scanned %s objects in %d buckets in %s (%s obj/s)\n",
		humanize.Comma(int64(s.ObjectsScanned)), s.Done, s.Elapsed.Round(time.Second), rate)
	if s.Skipped > 0 {
		cmd.Printf("Skipped %d buckets already done in the checkpoint database\n", s.Skipped)
	}
	if s.Failed > 0 {
		cmd.Printf("Failed to scan %d of %d buckets\n", s.Failed, s.Selected)
	}
	cmd.Printf("Missing: %s objects missing %s chunks; %s orphaned chunks seen\n",
		humanize.Comma(int64(s.MissingObjects)),
		humanize.Comma(int64(s.MissingChunks)),
		humanize.Comma(int64(s.OrphanChunks)))
	if s.WouldRepair > 0 {
		cmd.Printf("Would repair %s objects (dry run)\n", humanize.Comma(int64(s.WouldRepair)))
	}
	if s.Repaired > 0 || s.RepairFailed > 0 {
		cmd.Printf("Repaired %s objects, %s failed\n",
			humanize.Comma(int64(s.Repaired)), humanize.Comma(int64(s.RepairFailed)))
	}
}

func init() {
	rgwCmd.AddCommand(findMissingCmd)

	findMissingCmd.Flags().StringArrayVarP(&findMissingFlags.buckets, "bucket", "b", nil,
		"Restrict the scan to the named bucket (repeatable)")
	findMissingCmd.Flags().IntP("workers", "w", scrub.DefaultWorkers,
		"Number of buckets scanned concurrently")
	cobra.CheckErr(viper.BindPFlag("scan.workers", findMissingCmd.Flags().Lookup("workers")))
	findMissingCmd.Flags().Int64P("max-concurrent-ios", "m", scrub.DefaultMaxConcurrentIOs,
		"Bound on cluster operations in flight across all workers")
	cobra.CheckErr(viper.BindPFlag("scan.max_concurrent_ios", findMissingCmd.Flags().Lookup("max-concurrent-ios")))
	findMissingCmd.Flags().StringVarP(&findMissingFlags.statusOutput, "status-output", "s", "",
		"File to append progress lines to (default: standard error)")
	findMissingCmd.Flags().StringVarP(&findMissingFlags.bucketsDB, "processed-buckets-db", "d", "",
		"Checkpoint database; reruns against it skip buckets already done (default: in-memory)")
	findMissingCmd.Flags().StringVarP(&findMissingFlags.corruptedObjects, "corrupted-objects", "c", "",
		"Store the corruption report in the pool under this name")
	findMissingCmd.Flags().BoolVarP(&findMissingFlags.fix, "fix", "f", false,
		"Create zero-filled placeholders for missing chunks")
	findMissingCmd.Flags().BoolVarP(&findMissingFlags.fixIndex, "fix-bucket-index", "i", false,
		"Rewrite the bucket index entry of each repaired object")
	findMissingCmd.Flags().BoolVarP(&findMissingFlags.dryRun, "dry-run", "n", false,
		"Report what repairs would do without touching the cluster")

	viper.SetDefault("scan.max_tries", scrub.DefaultMaxTries)
}
