package airquality

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/air-quality-collector/internal/dataset"
	"github.com/i474232898/air-quality-collector/internal/metrics"
)

// MaxPageLimit is the largest page the API accepts.
const MaxPageLimit = 1000

// FetcherConfig holds the knobs of the page walk.
type FetcherConfig struct {
	// StationsPerDay is the number of rows published per hour. The offset
	// math depends on it being accurate.
	StationsPerDay int
	PageLimit      int
	PageDelay      time.Duration
	ErrorDelay     time.Duration

	// MaxConsecutiveFailures stops the walk after that many skipped pages in
	// a row (0 = never).
	MaxConsecutiveFailures int
}

// Fetcher walks the remote collection backwards from the end of the
// previous day and writes what it finds to CSV.
type Fetcher struct {
	source  Source
	cfg     FetcherConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewFetcher creates a Fetcher. A nil logger discards output; nil metrics
// record nothing.
func NewFetcher(source Source, cfg FetcherConfig, logger *slog.Logger, m *metrics.Metrics) *Fetcher {
	if cfg.PageLimit <= 0 || cfg.PageLimit > MaxPageLimit {
		cfg.PageLimit = MaxPageLimit
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{
		source:  source,
		cfg:     cfg,
		logger:  logger.With("source", source.Name()),
		metrics: m,
	}
}

// Fetch retrieves days full days of records into outputDir. Schema lookup failures
// and write errors are returned; skipped pages are not errors and show up in
// the report's Gaps instead.
func (f *Fetcher) Fetch(ctx context.Context, days int, outputDir string) (Report, error) {
	report := Report{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	if days <= 0 {
		return report, fmt.Errorf("%w: got %d", ErrInvalidDays, days)
	}
	if f.cfg.StationsPerDay <= 0 {
		return report, fmt.Errorf("stations per day must be positive, got %d", f.cfg.StationsPerDay)
	}

	headers, latest, err := f.latestSchema(ctx)
	if err != nil {
		return report, err
	}

	state := FetchState{
		Headers: headers,
		Offset:  StartOffset(latest, f.cfg.StationsPerDay),
		Target:  TargetRecords(days, f.cfg.StationsPerDay),
	}
	start, end := DateRange(latest, days)

	report.Latest = latest
	report.StartOffset = state.Offset
	report.StartDate = start
	report.EndDate = end
	report.Target = state.Target
	report.OutputPath = filepath.Join(outputDir, OutputName(start, end))

	f.logger.Info("starting fetch",
		"latest", latest.Format(CreationDateLayout),
		"hours_published", latest.Hour()+1,
		"start_offset", state.Offset,
		"from", start.Format(time.DateOnly),
		"to", end.Format(time.DateOnly),
		"target", state.Target,
		"output", report.OutputPath,
	)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return report, fmt.Errorf("creating output dir %s: %w", outputDir, err)
	}

	err = f.walk(ctx, &state, &report)
	report.Fetched = state.Fetched
	report.FinishedAt = time.Now().UTC()
	report.Complete = err == nil && len(report.Gaps) == 0 && state.Fetched >= state.Target
	if err != nil {
		return report, err
	}

	if report.Complete {
		f.logger.Info("fetch complete", "fetched", state.Fetched, "output", report.OutputPath)
	} else {
		f.logger.Warn("fetch incomplete; data may have gaps",
			"fetched", state.Fetched,
			"target", state.Target,
			"failed_pages", report.FailedPages,
			"stop_reason", report.StopReason,
		)
	}
	return report, nil
}

// latestSchema reads the newest record to learn the column list and the latest
// publication time.
func (f *Fetcher) latestSchema(ctx context.Context) ([]string, time.Time, error) {
	f.logger.Info("reading latest record for headers and start time")

	page, err := f.source.FetchPage(ctx, 0, 1)
	if err != nil {
		if ctx.Err() != nil {
			return nil, time.Time{}, fmt.Errorf("schema request: %w", ctx.Err())
		}
		return nil, time.Time{}, fmt.Errorf("%w: schema request: %w", ErrSchemaUnavailable, err)
	}
	if len(page.Fields) == 0 || len(page.Records) == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: schema request returned %d fields and %d records",
			ErrSchemaUnavailable, len(page.Fields), len(page.Records))
	}

	raw, ok := page.Records[0][CreationDateField]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("%w: latest record has no %s", ErrTimestampUnparsable, CreationDateField)
	}
	latest, err := ParseCreationDate(raw)
	if err != nil {
		return nil, time.Time{}, err
	}

	f.logger.Debug("schema request succeeded", "fields", page.Fields, "latest", raw)
	return page.Fields, latest, nil
}

func (f *Fetcher) walk(ctx context.Context, state *FetchState, report *Report) (err error) {
	file, err := os.Create(report.OutputPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", report.OutputPath, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", report.OutputPath, cerr)
		}
	}()

	w, err := dataset.NewRowWriter(file, state.Headers)
	if err != nil {
		return fmt.Errorf("%s: %w", report.OutputPath, err)
	}

	consecutive := 0
	firstPage := true
	for state.Fetched < state.Target {
		if ctx.Err() != nil {
			report.StopReason = StopCanceled
			return nil
		}

		limit := min(f.cfg.PageLimit, state.Remaining())
		f.logger.Debug("fetching page", "offset", state.Offset, "limit", limit)

		page, perr := f.source.FetchPage(ctx, state.Offset, limit)
		if perr != nil {
			if ctx.Err() != nil {
				report.StopReason = StopCanceled
				return nil
			}
			f.logger.Error("page request failed; skipping, data will have a gap",
				"offset", state.Offset, "limit", limit, "error", perr)
			f.metrics.PageFailed()
			report.FailedPages++
			report.Gaps = append(report.Gaps, Gap{Offset: state.Offset, Limit: limit})
			// Skip by the requested size so a persistently failing page
			// cannot pin the walk in place.
			state.Offset += limit

			consecutive++
			if f.cfg.MaxConsecutiveFailures > 0 && consecutive >= f.cfg.MaxConsecutiveFailures {
				f.logger.Error("too many consecutive page failures; stopping", "failures", consecutive)
				report.StopReason = StopConsecutiveFailures
				return nil
			}
			if sleep(ctx, f.cfg.ErrorDelay) != nil {
				report.StopReason = StopCanceled
				return nil
			}
			continue
		}
		consecutive = 0

		records := page.Records
		if len(records) == 0 {
			f.logger.Warn("API returned no more records; expected more data", "offset", state.Offset)
			report.StopReason = StopEndOfData
			return nil
		}
		if len(records) > limit {
			records = records[:limit]
		}

		if firstPage {
			f.checkAlignment(records[0], report.EndDate)
			firstPage = false
		}

		if err := w.WriteRows(project(state.Headers, records)); err != nil {
			return fmt.Errorf("writing %s: %w", report.OutputPath, err)
		}

		n := len(records)
		state.Offset += n
		state.Fetched += n
		f.metrics.PageFetched(n)
		f.logger.Info("fetched page", "records", n, "fetched", state.Fetched, "target", state.Target)

		if state.Fetched < state.Target {
			if sleep(ctx, f.cfg.PageDelay) != nil {
				report.StopReason = StopCanceled
				return nil
			}
		}
	}

	report.StopReason = StopTargetReached
	return nil
}

// checkAlignment warns when the first fetched row is not from 23:00 of the
// last requested day, which means the station count no longer matches the
// upstream collection. It only logs.
func (f *Fetcher) checkAlignment(first Record, end time.Time) {
	got, err := ParseCreationDate(first[CreationDateField])
	if err != nil {
		return
	}
	want := end.Add(23 * time.Hour)
	if got.Truncate(time.Hour).Equal(want) {
		return
	}
	f.logger.Warn("first page does not start at the end of the previous day; stations_per_day may be stale",
		"stations_per_day", f.cfg.StationsPerDay,
		"first_record", got.Format(CreationDateLayout),
		"expected_hour", want.Format(CreationDateLayout),
	)
}

// project orders each record's values by headers; missing fields are empty.
func project(headers []string, records []Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = rec[h]
		}
		rows = append(rows, row)
	}
	return rows
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
