package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/i474232898/air-quality-collector/internal/airquality"
	"github.com/i474232898/air-quality-collector/internal/collector"
	"github.com/i474232898/air-quality-collector/internal/metrics"
	"github.com/i474232898/air-quality-collector/internal/store"
)

// fakeService backs the handlers with a real MemoryStore and a canned Run result.
type fakeService struct {
	*store.MemoryStore
	runReport airquality.Report
	runErr    error
	gotDays   int
}

func (f *fakeService) Run(ctx context.Context, days int) (airquality.Report, error) {
	f.gotDays = days
	if f.runErr == nil || !errors.Is(f.runErr, collector.ErrFetchFailed) {
		f.Save(f.runReport)
	}
	return f.runReport, f.runErr
}

func newTestApp(svc Service, gatherer prometheus.Gatherer) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": true, "message": err.Error()})
		},
	})
	RegisterRoutes(app, svc, gatherer, time.Minute)
	return app
}

func do(t *testing.T, app *fiber.App, method, target string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, body)
	}
}

// TestRunDaysValidation verifies that manual runs enforce the 1-31 range
// for the `days` query parameter.
func TestRunDaysValidation(t *testing.T) {
	svc := &fakeService{MemoryStore: store.NewMemoryStore(10, time.Hour)}
	app := newTestApp(svc, nil)

	for _, target := range []string{
		"/api/v1/runs",
		"/api/v1/runs?days=abc",
		"/api/v1/runs?days=0",
		"/api/v1/runs?days=32",
	} {
		resp := do(t, app, http.MethodPost, target)
		expectStatus(t, resp, http.StatusBadRequest)
	}
	if svc.gotDays != 0 {
		t.Fatalf("service should not have been called, got days=%d", svc.gotDays)
	}
}

func TestRunCreatesReport(t *testing.T) {
	svc := &fakeService{
		MemoryStore: store.NewMemoryStore(10, 0),
		runReport: airquality.Report{
			ID:         "run-1",
			StartedAt:  time.Now().UTC(),
			OutputPath: "air_quality_data/20250331_20250331.csv",
			Target:     2088,
			Fetched:    2088,
			Complete:   true,
		},
	}
	app := newTestApp(svc, nil)

	resp := do(t, app, http.MethodPost, "/api/v1/runs?days=1")
	expectStatus(t, resp, http.StatusCreated)
	if svc.gotDays != 1 {
		t.Fatalf("expected days=1, got %d", svc.gotDays)
	}

	var body struct {
		Run     airquality.Report `json:"run"`
		Warning string            `json:"warning"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Run.ID != "run-1" || !body.Run.Complete || body.Warning != "" {
		t.Fatalf("unexpected body: %+v", body)
	}

	resp = do(t, app, http.MethodGet, "/api/v1/runs/latest")
	expectStatus(t, resp, http.StatusOK)

	resp = do(t, app, http.MethodGet, "/api/v1/runs/run-1")
	expectStatus(t, resp, http.StatusOK)
}

func TestRunErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "in progress", err: collector.ErrRunInProgress, want: http.StatusConflict},
		{name: "schema", err: errors.Join(collector.ErrFetchFailed, airquality.ErrSchemaUnavailable), want: http.StatusBadGateway},
		{name: "timestamp", err: errors.Join(collector.ErrFetchFailed, airquality.ErrTimestampUnparsable), want: http.StatusBadGateway},
		{name: "fetch timed out", err: errors.Join(collector.ErrFetchFailed, context.DeadlineExceeded), want: http.StatusGatewayTimeout},
		{name: "other fetch failure", err: errors.Join(collector.ErrFetchFailed, errors.New("disk full")), want: http.StatusInternalServerError},
		{name: "post-processing warning", err: errors.New("clean: column not found"), want: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{
				MemoryStore: store.NewMemoryStore(10, 0),
				runReport:   airquality.Report{ID: "r", StartedAt: time.Now().UTC()},
				runErr:      tt.err,
			}
			resp := do(t, newTestApp(svc, nil), http.MethodPost, "/api/v1/runs?days=2")
			expectStatus(t, resp, tt.want)
		})
	}
}

func TestLatestNotFound(t *testing.T) {
	app := newTestApp(&fakeService{MemoryStore: store.NewMemoryStore(10, 0)}, nil)

	expectStatus(t, do(t, app, http.MethodGet, "/api/v1/runs/latest"), http.StatusNotFound)
	expectStatus(t, do(t, app, http.MethodGet, "/api/v1/runs/nope"), http.StatusNotFound)
}

func TestHistoryQueryValidation(t *testing.T) {
	app := newTestApp(&fakeService{MemoryStore: store.NewMemoryStore(10, 0)}, nil)

	for _, target := range []string{
		"/api/v1/runs",
		"/api/v1/runs?from=2025-04-01T00:00:00Z",
		"/api/v1/runs?from=yesterday&to=today",
		// to before from
		"/api/v1/runs?from=2025-04-02T00:00:00Z&to=2025-04-01T00:00:00Z",
	} {
		expectStatus(t, do(t, app, http.MethodGet, target), http.StatusBadRequest)
	}
}

func TestHistoryRange(t *testing.T) {
	mem := store.NewMemoryStore(10, 0)
	started := time.Date(2025, 4, 1, 1, 30, 0, 0, time.UTC)
	mem.Save(airquality.Report{ID: "a", StartedAt: started})
	app := newTestApp(&fakeService{MemoryStore: mem}, nil)

	resp := do(t, app, http.MethodGet, "/api/v1/runs?from=2025-04-01T00:00:00Z&to=1743500000")
	expectStatus(t, resp, http.StatusOK)

	var body struct {
		Runs []airquality.Report `json:"runs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Runs) != 1 || body.Runs[0].ID != "a" {
		t.Fatalf("unexpected runs: %+v", body.Runs)
	}

	resp = do(t, app, http.MethodGet, "/api/v1/runs?from=2024-01-01T00:00:00Z&to=2024-01-02T00:00:00Z")
	expectStatus(t, resp, http.StatusNotFound)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.PageFetched(1000)

	app := newTestApp(&fakeService{MemoryStore: store.NewMemoryStore(10, 0)}, reg)
	resp := do(t, app, http.MethodGet, "/metrics")
	expectStatus(t, resp, http.StatusOK)

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "aqx_records_written_total 1000") {
		t.Fatalf("metrics output missing counter:\n%s", body)
	}

	// Without a gatherer the route is not registered.
	app = newTestApp(&fakeService{MemoryStore: store.NewMemoryStore(10, 0)}, nil)
	expectStatus(t, do(t, app, http.MethodGet, "/metrics"), http.StatusNotFound)
}
