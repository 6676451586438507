package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/i474232898/air-quality-collector/internal/airquality"
	"github.com/i474232898/air-quality-collector/internal/airquality/providers"
	httpapi "github.com/i474232898/air-quality-collector/internal/api/http"
	"github.com/i474232898/air-quality-collector/internal/archive"
	"github.com/i474232898/air-quality-collector/internal/collector"
	"github.com/i474232898/air-quality-collector/internal/common"
	"github.com/i474232898/air-quality-collector/internal/config"
	"github.com/i474232898/air-quality-collector/internal/dataset"
	"github.com/i474232898/air-quality-collector/internal/logging"
	"github.com/i474232898/air-quality-collector/internal/metrics"
	"github.com/i474232898/air-quality-collector/internal/scheduler"
	"github.com/i474232898/air-quality-collector/internal/store"
)

const appName = "air-quality-collector"

const usage = `usage: air-quality-collector <command> [flags]

commands:
  fetch   fetch past full days of readings into a CSV file
  clean   drop rows with non-numeric monitored values
  bin     label numeric columns with equal-width bins
  serve   run the scheduler and the HTTP control API
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "fetch":
		err = runFetch(os.Args[2:])
	case "clean":
		err = runClean(os.Args[2:])
	case "bin":
		err = runBin(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func runFetch(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	days := fs.Int("days", cfg.DaysToFetch, "number of past full days to fetch")
	out := fs.String("out", cfg.OutputDir, "output directory")
	post := fs.Bool("postprocess", cfg.PostProcess, "clean and bin the fetched file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.OutputDir = *out
	cfg.PostProcess = *post

	log := logging.New(os.Stdout, cfg.AppEnv, cfg.LogLevel, appName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, err := buildService(ctx, cfg, log, nil)
	if err != nil {
		return err
	}

	report, err := service.Run(ctx, *days)
	if err != nil {
		return err
	}
	if !report.Complete {
		log.Warn("run incomplete", "fetched", report.Fetched, "target", report.Target, "gaps", len(report.Gaps))
	}
	fmt.Println(report.OutputPath)
	return nil
}

func runClean(args []string) error {
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	cols := fs.String("columns", "", "comma-separated numeric columns to check (default: pollutants and windspeed)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("at least one input CSV is required")
	}

	columns := dataset.DefaultCleanColumns
	if *cols != "" {
		columns = common.SplitList(*cols)
	}

	log := logging.New(os.Stdout, "dev", slog.LevelInfo, appName)
	for _, in := range fs.Args() {
		out, res, err := dataset.CleanFile(in, columns)
		if err != nil {
			return err
		}
		log.Info("cleaned", "input", in, "output", out, "kept", res.Kept, "dropped", res.Dropped)
	}
	return nil
}

func runBin(args []string) error {
	fs := flag.NewFlagSet("bin", flag.ExitOnError)
	bounds := fs.Bool("bounds", false, "also write the bin boundaries to <name>_bins.csv")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("at least one input CSV is required")
	}

	log := logging.New(os.Stdout, "dev", slog.LevelInfo, appName)
	for _, in := range fs.Args() {
		res, err := dataset.BinFile(in, dataset.DefaultBinSpecs(), *bounds)
		if err != nil {
			return err
		}
		log.Info("binned", "input", in, "output", res.BinnedPath, "bins", res.BinsPath)
	}
	return nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(os.Stdout, cfg.AppEnv, cfg.LogLevel, appName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service, err := buildService(ctx, cfg, log, metrics.New(reg))
	if err != nil {
		return err
	}

	// Scheduler that runs a collection every day.
	sched := scheduler.New(cfg.FetchSchedule, cfg.DaysToFetch, cfg.RunTimeout, service, log)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// Manual runs are synchronous.
		WriteTimeout: cfg.RunTimeout + 10*time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": appName,
		})
	})

	httpapi.RegisterRoutes(app, service, reg, cfg.RunTimeout)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "error", err)
		}
	}()
	log.Info("http server listening", "port", cfg.Port)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
	return nil
}

// buildService wires the MOENV source, fetcher, run store and optional
// archive into a collector service.
func buildService(ctx context.Context, cfg *config.AppConfig, log *slog.Logger, m *metrics.Metrics) (*collector.Service, error) {
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	source, err := providers.NewMOENVProvider(httpClient, cfg.APIKey, providers.MOENVOptions{
		BaseURL: cfg.BaseURL,
		Backoff: providers.BackoffConfig{
			MaxRetries:      cfg.RetryMax,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		TripAfter: providers.TripThreshold(cfg.RetryMax, cfg.MaxConsecutiveFailures),
	})
	if err != nil {
		return nil, err
	}

	fetcher := airquality.NewFetcher(source, airquality.FetcherConfig{
		StationsPerDay:         cfg.StationsPerDay,
		PageLimit:              cfg.PageLimit,
		PageDelay:              cfg.PageDelay,
		ErrorDelay:             cfg.ErrorDelay,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
	}, log, m)

	var archiver collector.Archiver
	if cfg.Archive.Enabled() {
		a, err := archive.NewMinio(ctx, archive.Options{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			Prefix:    cfg.Archive.Prefix,
			UseSSL:    cfg.Archive.UseSSL,
			Region:    cfg.Archive.Region,
		}, log)
		if err != nil {
			return nil, err
		}
		archiver = a
	}

	runs := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	return collector.NewService(fetcher, runs, archiver, collector.Options{
		OutputDir:    cfg.OutputDir,
		PostProcess:  cfg.PostProcess,
		CleanColumns: cfg.CleanColumns,
	}, log, m), nil
}
