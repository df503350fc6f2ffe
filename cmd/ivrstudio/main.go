// ivrstudio prepares phone-system announcement audio: it normalizes uploaded
// background music and assembles staged speech renders into a job archive.
//
// Usage:
//
//	ivrstudio normalize upload.mp3 [more.mp3 ...]
//	ivrstudio assemble ACME --background songs/jingle.mp3
//	ivrstudio library
//	ivrstudio cleanup
//
// With --metrics-file the Prometheus collectors are written on exit in the
// text format read by node_exporter's textfile collector.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	ivrstudio "github.com/Skryldev/ivr-studio"
	"github.com/Skryldev/ivr-studio/domain/ports"
	"github.com/Skryldev/ivr-studio/internal/config"
	"github.com/Skryldev/ivr-studio/pkg/logger"
)

// version is set at build time via ldflags.
var version = "dev"

type app struct {
	v           *viper.Viper
	configFile  string
	verbose     bool
	metricsFile string

	registry *prometheus.Registry
	log      *logger.Logger
	studio   *ivrstudio.Studio
	progress chan ivrstudio.ProgressUpdate
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// ── Graceful shutdown via signal ──────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{v: viper.New(), registry: prometheus.NewRegistry()}
	// cobra skips post-run hooks when RunE fails
	defer a.teardown()
	return a.rootCommand().ExecuteContext(ctx)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ivrstudio",
		Short:         "Normalize background music and assemble IVR prompt archives",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			cmd.SetContext(logger.WithContext(cmd.Context(), a.log))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "path to config file (e.g. configs/ivrstudio.yaml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "print per-unit progress")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Int("workers", 0, "unit pipelines run at once")
	_ = a.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("pipeline.workers", flags.Lookup("workers"))

	root.AddCommand(
		a.normalizeCommand(),
		a.assembleCommand(),
		a.libraryCommand(),
		a.cleanupCommand(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.LoadWith(a.v, a.configFile)
	if err != nil {
		return err
	}

	a.log, err = logger.NewWithConfig(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	// ── Progress channel ──────────────────────────────────────────────────
	a.progress = make(chan ivrstudio.ProgressUpdate, 64)
	go func(verbose bool) {
		for upd := range a.progress {
			if !verbose {
				continue
			}
			fmt.Printf("[%s] %-10s stage=%-9s %3.0f%%  %s\n",
				upd.JobID, upd.Unit, upd.Stage, upd.Percent, upd.Message)
		}
	}(a.verbose)

	a.studio, err = ivrstudio.New(ivrstudio.Config{
		FFmpegPath:  cfg.Engine.FFmpegPath,
		FFprobePath: cfg.Engine.FFprobePath,
		Dirs: ivrstudio.Dirs{
			StagingRoot: cfg.Dirs.Staging,
			WorkRoot:    cfg.Dirs.Work,
			ResultsRoot: cfg.Dirs.Results,
			LibraryDir:  cfg.Dirs.Library,
		},
		Logger:     a.log,
		ProgressCh: a.progress,
		Registerer: a.registry,
		Options:    []ports.Option{ports.WithStudioOptions(cfg.StudioOptions())},
	})
	if err != nil {
		return fmt.Errorf("failed to create studio: %w", err)
	}
	a.log.Debug("ivrstudio ready", zap.String("version", version))
	return nil
}

func (a *app) teardown() {
	if a.metricsFile != "" && a.studio != nil {
		if err := prometheus.WriteToTextfile(a.metricsFile, a.registry); err != nil {
			fmt.Fprintf(os.Stderr, "write metrics: %v\n", err)
		}
	}
	if a.studio != nil {
		a.studio.Close()
	}
	if a.progress != nil {
		close(a.progress)
	}
}

func (a *app) normalizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize UPLOAD...",
		Short: "Level uploads to the target loudness and add them to the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.FromContext(cmd.Context())
			failed := 0
			for _, upload := range args {
				out, err := a.studio.Normalize(cmd.Context(), upload)
				if err != nil {
					failed++
					log.Warn("upload rejected", zap.String("upload", upload), zap.Error(err))
					fmt.Fprintf(os.Stderr, "%s: %v\n", upload, err)
					continue
				}
				fmt.Printf("%s -> %s\n", upload, out)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(args))
			}
			return nil
		},
	}
}

func (a *app) assembleCommand() *cobra.Command {
	var background string
	var release bool

	cmd := &cobra.Command{
		Use:   "assemble JOB",
		Short: "Assemble the job's staged renders into one archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.studio.AssembleJob(cmd.Context(), args[0], background)
			if err != nil {
				return err
			}

			fmt.Printf("Archive: %s (%s, took=%s)\n", res.ArchivePath, res.State, res.Duration)
			fmt.Printf("Completed: %d\n", len(res.Completed))
			for _, s := range res.Skipped {
				fmt.Printf("Skipped: %s at %s: %s\n", s.Unit, s.Stage, s.Error)
			}

			if release {
				job, err := a.studio.JobFor(args[0])
				if err != nil {
					return err
				}
				return a.studio.Release(cmd.Context(), job)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&background, "background", "b", "", "background bed to loop under every message")
	cmd.Flags().BoolVar(&release, "release", false, "remove the results directory once the archive exists")
	return cmd
}

func (a *app) libraryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "library",
		Short: "List normalized background beds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := a.studio.Library(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}

func (a *app) cleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove staging and work directories left by interrupted jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.studio.CleanupStale(cmd.Context())
			fmt.Printf("removed %d stale directories\n", n)
			return err
		},
	}
}
