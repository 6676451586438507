package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{
	"fields": [
		{"id": "sitename", "type": "text", "info": {"label": "測站名稱"}},
		{"id": "pm2.5", "type": "text", "info": {"label": "細懸浮微粒"}},
		{"id": "windspeed", "type": "text", "info": {"label": "風速"}},
		{"id": "datacreationdate", "type": "text", "info": {"label": "資料建置日期"}}
	],
	"records": [
		{"sitename": "基隆", "pm2.5": "12", "windspeed": 1.50, "datacreationdate": "2025-04-01 05:00"},
		{"sitename": "汐止", "pm2.5": null, "windspeed": 100000000000000000001, "datacreationdate": "2025-04-01 05:00"}
	]
}`

func testProvider(t *testing.T, url string, retries int) *MOENVProvider {
	t.Helper()
	p, err := NewMOENVProvider(&http.Client{Timeout: 5 * time.Second}, "secret", MOENVOptions{
		BaseURL: url,
		Backoff: BackoffConfig{
			MaxRetries:      retries,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	return p
}

func TestMOENVProvider_FetchPage(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"api_key": q.Get("api_key"),
			"limit":   q.Get("limit"),
			"offset":  q.Get("offset"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	page, err := testProvider(t, srv.URL, 0).FetchPage(context.Background(), 522, 1000)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"api_key": "secret", "limit": "1000", "offset": "522"}, gotQuery)
	assert.Equal(t, 522, page.Offset)
	assert.Equal(t, []string{"sitename", "pm2.5", "windspeed", "datacreationdate"}, page.Fields)
	require.Len(t, page.Records, 2)

	assert.Equal(t, "基隆", page.Records[0]["sitename"])
	// Numbers keep their source text.
	assert.Equal(t, "1.50", page.Records[0]["windspeed"])
	assert.Equal(t, "100000000000000000001", page.Records[1]["windspeed"])
	assert.Equal(t, "", page.Records[1]["pm2.5"])
}

func TestMOENVProvider_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	page, err := testProvider(t, srv.URL, 2).FetchPage(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestMOENVProvider_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testProvider(t, srv.URL, 2).FetchPage(context.Background(), 0, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errServerError)
	assert.Equal(t, int32(3), calls.Load())
}

func TestMOENVProvider_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid api_key"})
	}))
	defer srv.Close()

	_, err := testProvider(t, srv.URL, 3).FetchPage(context.Background(), 0, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnexpected)
	assert.Contains(t, err.Error(), "invalid api_key")
	assert.Equal(t, int32(1), calls.Load())
}

func TestMOENVProvider_RateLimitIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	_, err := testProvider(t, srv.URL, 1).FetchPage(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMOENVProvider_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	_, err := testProvider(t, srv.URL, 0).FetchPage(context.Background(), 0, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding response")
}

func TestMOENVProvider_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testProvider(t, srv.URL, 0).FetchPage(ctx, 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMOENVProvider_RequiresKey(t *testing.T) {
	_, err := NewMOENVProvider(http.DefaultClient, "", MOENVOptions{})
	require.Error(t, err)

	p, err := NewMOENVProvider(http.DefaultClient, "k", MOENVOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultMOENVBaseURL, p.baseURL)
	assert.Equal(t, "moenv", p.Name())
}

func TestScalarString(t *testing.T) {
	assert.Equal(t, "", scalarString(nil))
	assert.Equal(t, "true", scalarString(true))
	assert.Equal(t, "0.35", scalarString(json.Number("0.35")))
	assert.Equal(t, `{"a":1}`, scalarString(map[string]any{"a": json.Number("1")}))
}
