package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input, want string
	}{
		{"https://ESAJ.tjsp.jus.br/cpopg/open.do", "esaj.tjsp.jus.br"},
		{"esaj.tjsp.jus.br", "esaj.tjsp.jus.br"},
		{"127.0.0.1:8080", "127.0.0.1"},
		{"http://%", "unknown"},
		{"", "unknown"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, SanitizeSite(tc.input), tc.input)
	}
}

func FuzzSanitizeSite(f *testing.F) {
	for _, seed := range []string{"https://esaj.tjsp.jus.br", "www2.tjal.jus.br", "ftp://x"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		if SanitizeSite(raw) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", raw)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	m, err := New()
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })

	for _, path := range []string{"/ok", "/missing", "/ok"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}
	require.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "404")))
	require.Equal(t, 2, testutil.CollectAndCount(m.httpDuration))
}

type fakeGate struct{}

func (fakeGate) Capacity() int64 { return 5 }
func (fakeGate) Active() int64   { return 2 }
func (fakeGate) Waiting() int64  { return 7 }
func (fakeGate) Peak() int64     { return 5 }
func (fakeGate) Acquired() int64 { return 40 }

func TestHandlerExposesGateAndDelays(t *testing.T) {
	t.Parallel()

	m, err := New()
	require.NoError(t, err)
	require.NoError(t, m.RegisterGate(fakeGate{}))
	require.Error(t, m.RegisterGate(fakeGate{}))
	m.ObserveRateLimitDelay("esaj.tjsp.jus.br", 250*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	require.Contains(t, text, "docket_admission_waiting 7")
	require.Contains(t, text, "docket_admission_acquired_total 40")
	require.True(t, strings.Contains(text, `docket_rate_limit_delays_seconds_count{host="esaj.tjsp.jus.br"} 1`))
	require.Contains(t, text, "go_goroutines")
}
