package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/i474232898/air-quality-collector/internal/airquality"
	"github.com/i474232898/air-quality-collector/internal/dataset"
	"github.com/i474232898/air-quality-collector/internal/metrics"
)

var (
	// ErrRunInProgress is returned when Run is called while another run is active.
	ErrRunInProgress = errors.New("a collection run is already in progress")
	// ErrFetchFailed wraps fatal fetch errors; no report is stored for them.
	ErrFetchFailed = errors.New("fetch failed")
)

// Fetcher produces the raw CSV for a run.
type Fetcher interface {
	Fetch(ctx context.Context, days int, outputDir string) (airquality.Report, error)
}

// Store is the contract the in-memory run history (and any future persistent store) must satisfy.
type Store interface {
	Save(report airquality.Report)
	Latest() (airquality.Report, error)
	Get(id string) (airquality.Report, error)
	Range(from, to time.Time) ([]airquality.Report, error)
}

// Archiver copies a produced file to long-term storage and returns its key.
type Archiver interface {
	Upload(ctx context.Context, day time.Time, file string) (string, error)
}

// Options controls what happens around the fetch.
type Options struct {
	OutputDir    string
	PostProcess  bool
	CleanColumns []string
	BinSpecs     []dataset.BinSpec
}

// Service runs fetch, clean, bin and archive in sequence and keeps a
// history of reports. At most one run executes at a time.
type Service struct {
	fetcher  Fetcher
	store    Store
	archiver Archiver
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Metrics

	running sync.Mutex
}

// NewService creates a new Service. archiver may be nil.
func NewService(fetcher Fetcher, store Store, archiver Archiver, opts Options, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(opts.CleanColumns) == 0 {
		opts.CleanColumns = dataset.DefaultCleanColumns
	}
	if len(opts.BinSpecs) == 0 {
		opts.BinSpecs = dataset.DefaultBinSpecs()
	}
	return &Service{
		fetcher:  fetcher,
		store:    store,
		archiver: archiver,
		opts:     opts,
		logger:   logger,
		metrics:  m,
	}
}

// Run performs one collection run for days full days. A fatal fetch error
// is returned without storing a report. Post-processing and archive errors
// are returned too, but the report is stored regardless.
func (s *Service) Run(ctx context.Context, days int) (airquality.Report, error) {
	if !s.running.TryLock() {
		return airquality.Report{}, ErrRunInProgress
	}
	defer s.running.Unlock()

	started := time.Now()
	report, err := s.fetcher.Fetch(ctx, days, s.opts.OutputDir)
	if err != nil {
		s.metrics.RunFinished("failed", time.Since(started))
		s.logger.Error("fetch aborted", "error", err)
		return report, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	var errs []error
	if s.opts.PostProcess && report.Fetched > 0 {
		if err := s.postProcess(&report); err != nil {
			errs = append(errs, err)
		}
	}
	if s.archiver != nil {
		if err := s.archive(ctx, &report); err != nil {
			errs = append(errs, err)
		}
	}

	s.store.Save(report)

	status := "complete"
	if !report.Complete {
		status = "incomplete"
	}
	s.metrics.RunFinished(status, time.Since(started))
	s.logger.Info("run finished", "id", report.ID, "status", status, "fetched", report.Fetched, "target", report.Target)

	return report, errors.Join(errs...)
}

func (s *Service) postProcess(report *airquality.Report) error {
	cleaned, res, err := dataset.CleanFile(report.OutputPath, s.opts.CleanColumns)
	if err != nil {
		s.logger.Error("clean failed", "input", report.OutputPath, "error", err)
		return fmt.Errorf("clean: %w", err)
	}
	report.CleanedPath = cleaned
	s.metrics.Dropped(res.Dropped)
	s.logger.Info("cleaned data", "output", cleaned, "kept", res.Kept, "dropped", res.Dropped)

	binned, err := dataset.BinFile(cleaned, s.opts.BinSpecs, true)
	if err != nil {
		s.logger.Error("bin failed", "input", cleaned, "error", err)
		return fmt.Errorf("bin: %w", err)
	}
	report.BinnedPath = binned.BinnedPath
	report.BinsPath = binned.BinsPath
	s.logger.Info("binned data", "output", binned.BinnedPath, "bins", binned.BinsPath)
	return nil
}

func (s *Service) archive(ctx context.Context, report *airquality.Report) error {
	var errs []error
	for _, file := range []string{report.OutputPath, report.CleanedPath, report.BinnedPath, report.BinsPath} {
		if file == "" {
			continue
		}
		key, err := s.archiver.Upload(ctx, report.EndDate, file)
		if err != nil {
			s.logger.Error("archive upload failed", "file", file, "error", err)
			errs = append(errs, err)
			continue
		}
		report.ArchivedKeys = append(report.ArchivedKeys, key)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}

// Latest delegates to the underlying store.
func (s *Service) Latest() (airquality.Report, error) {
	return s.store.Latest()
}

// Get delegates to the underlying store.
func (s *Service) Get(id string) (airquality.Report, error) {
	return s.store.Get(id)
}

// Range delegates to the underlying store.
func (s *Service) Range(from, to time.Time) ([]airquality.Report, error) {
	return s.store.Range(from, to)
}
