package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Fatalf("GetCorrelation(empty) = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc")
	if got := GetCorrelation(ctx); got != "abc" {
		t.Errorf("GetCorrelation = %q, want abc", got)
	}

	var buf bytes.Buffer
	log := LoggerWithCorr(ctx, slog.New(slog.NewTextHandler(&buf, nil)))
	log.Info("hello")
	if !strings.Contains(buf.String(), "corr=abc") {
		t.Errorf("log output %q missing corr attribute", buf.String())
	}
}

func TestTimeFunc(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_duration_seconds"})
	d := TimeFunc(h, func() { time.Sleep(time.Millisecond) })
	if d < time.Millisecond {
		t.Errorf("TimeFunc = %v, want >= 1ms", d)
	}
	if got := testutil.CollectAndCount(h); got != 1 {
		t.Errorf("collected %d metrics, want 1", got)
	}
	TimeFunc(nil, func() {})
}

func TestHandler(t *testing.T) {
	Commands.WithLabelValues("help", "ok").Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	for path, want := range map[string]string{
		"/healthz": "ok",
		"/metrics": "bot_commands_total",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d", path, resp.StatusCode)
		}
		if !strings.Contains(string(body), want) {
			t.Errorf("GET %s body missing %q", path, want)
		}
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "test", "dev", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	shutdown()

	_, span := StartSpan(WithCorrelation(context.Background(), "x"), "noop")
	RecordError(span, nil)
	span.End()
}
