package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/air-quality-collector/internal/airquality"
	"github.com/i474232898/air-quality-collector/internal/collector"
	"github.com/i474232898/air-quality-collector/internal/store"
)

var validate = validator.New()

// Service is what the handlers need from collector.Service.
type Service interface {
	Run(ctx context.Context, days int) (airquality.Report, error)
	Latest() (airquality.Report, error)
	Get(id string) (airquality.Report, error)
	Range(from, to time.Time) ([]airquality.Report, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. gatherer may
// be nil, in which case /metrics is not exposed.
func RegisterRoutes(app *fiber.App, service Service, gatherer prometheus.Gatherer, runTimeout time.Duration) {
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/runs/latest", func(c *fiber.Ctx) error {
		report, err := service.Latest()
		if err != nil {
			return storeError(err, "no runs recorded yet")
		}
		return c.JSON(report)
	})

	v1.Get("/runs/:id", func(c *fiber.Ctx) error {
		report, err := service.Get(c.Params("id"))
		if err != nil {
			return storeError(err, "unknown run id")
		}
		return c.JSON(report)
	})

	v1.Get("/runs", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		reports, err := service.Range(req.From, req.To)
		if err != nil {
			return storeError(err, "no runs in requested range")
		}

		return c.JSON(fiber.Map{
			"from": req.From,
			"to":   req.To,
			"runs": reports,
		})
	})

	v1.Post("/runs", func(c *fiber.Ctx) error {
		var req runRequest
		days, err := strconv.Atoi(c.Query("days"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "days query parameter must be an integer")
		}
		req.Days = days
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), runTimeout)
		defer cancel()

		report, err := service.Run(ctx, req.Days)
		switch {
		case errors.Is(err, collector.ErrRunInProgress):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case errors.Is(err, airquality.ErrSchemaUnavailable), errors.Is(err, airquality.ErrTimestampUnparsable):
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		case errors.Is(err, airquality.ErrInvalidDays):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, collector.ErrFetchFailed) &&
			(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)):
			return fiber.NewError(fiber.StatusGatewayTimeout, "collection run timed out or was canceled")
		case errors.Is(err, collector.ErrFetchFailed):
			return fiber.NewError(fiber.StatusInternalServerError, "collection run failed")
		}

		resp := fiber.Map{"run": report}
		if err != nil {
			resp["warning"] = err.Error()
		}
		return c.Status(fiber.StatusCreated).JSON(resp)
	})
}

func storeError(err error, notFound string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, notFound)
	}
	return fiber.NewError(fiber.StatusInternalServerError, "failed to read run history")
}

// runRequest holds the parameters of a manual run.
type runRequest struct {
	Days int `validate:"gte=1,lte=31"`
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
