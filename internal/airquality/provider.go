package airquality

import (
	"context"
	"errors"
)

var (
	// ErrSchemaUnavailable is returned when the latest-record request yields no fields or no records.
	ErrSchemaUnavailable = errors.New("schema unavailable")
	// ErrTimestampUnparsable is returned when the latest record has no usable creation date.
	ErrTimestampUnparsable = errors.New("timestamp unparsable")
	// ErrInvalidDays is returned for a non-positive day count.
	ErrInvalidDays = errors.New("days to fetch must be a positive integer")
)

// Source abstracts the paginated remote collection (e.g. MOENV aqx_p_488).
type Source interface {
	Name() string
	FetchPage(ctx context.Context, offset, limit int) (Page, error)
}
