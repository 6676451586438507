package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/air-quality-collector/internal/airquality"
)

// DefaultMOENVBaseURL is the hourly air-quality dataset of Taiwan's Ministry
// of Environment.
const DefaultMOENVBaseURL = "https://data.moenv.gov.tw/api/v2/aqx_p_488"

// MOENVProvider implements airquality.Source for the MOENV open data API.
type MOENVProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// MOENVOptions configures a MOENVProvider. Zero values take defaults.
type MOENVOptions struct {
	BaseURL string
	Backoff BackoffConfig

	// TripAfter is the number of consecutive failed attempts the breaker
	// tolerates before opening. Zero keeps gobreaker's default of 5.
	TripAfter uint32
}

// TripThreshold is the longest run of failed attempts a fetch makes before
// its own failure cap stops it: retries+1 attempts for each of pageFailures
// pages. pageFailures <= 0 disables tripping.
func TripThreshold(retries, pageFailures int) uint32 {
	if pageFailures <= 0 {
		return math.MaxUint32
	}
	return uint32((max(retries, 0) + 1) * pageFailures)
}

func NewMOENVProvider(client *http.Client, apiKey string, opts MOENVOptions) (*MOENVProvider, error) {
	if apiKey == "" {
		return nil, errors.New("moenv api key is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultMOENVBaseURL
	}
	if opts.Backoff.InitialInterval <= 0 {
		opts.Backoff.InitialInterval = 500 * time.Millisecond
	}
	if opts.Backoff.MaxInterval <= 0 {
		opts.Backoff.MaxInterval = 5 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "moenv",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	}
	if trip := opts.TripAfter; trip > 0 {
		settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > trip
		}
	}
	cb := gobreaker.NewCircuitBreaker(settings)

	return &MOENVProvider{
		name:    "moenv",
		apiKey:  apiKey,
		baseURL: opts.BaseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: opts.Backoff,
		},
		circuit: cb,
	}, nil
}

func (p *MOENVProvider) Name() string {
	return p.name
}

type moenvPayload struct {
	Fields []struct {
		ID string `json:"id"`
	} `json:"fields"`
	Records []map[string]any `json:"records"`
}

// FetchPage requests limit records starting at offset.
func (p *MOENVProvider) FetchPage(ctx context.Context, offset, limit int) (airquality.Page, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("api_key", p.apiKey)
		values.Set("limit", strconv.Itoa(limit))
		values.Set("offset", strconv.Itoa(offset))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "*/*")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return airquality.Page{}, fmt.Errorf("moenv offset=%d limit=%d: %w", offset, limit, err)
	}
	defer resp.Body.Close()

	var payload moenvPayload
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return airquality.Page{}, fmt.Errorf("moenv offset=%d: decoding response: %w", offset, err)
	}

	page := airquality.Page{
		Fields:  make([]string, 0, len(payload.Fields)),
		Records: make([]airquality.Record, 0, len(payload.Records)),
		Offset:  offset,
	}
	for _, f := range payload.Fields {
		page.Fields = append(page.Fields, f.ID)
	}
	for _, raw := range payload.Records {
		rec := make(airquality.Record, len(raw))
		for k, v := range raw {
			rec[k] = scalarString(v)
		}
		page.Records = append(page.Records, rec)
	}
	return page, nil
}

// scalarString renders a decoded JSON scalar as CSV cell text.
func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
