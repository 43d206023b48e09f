package planning

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/edit"
)

func newTestClient(url string) *HTTPClient {
	c := NewHTTPClient(url, "test-token", 5*time.Second, nil)
	c.backoffStep = time.Millisecond
	return c
}

func TestCheckHealth_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s, want /health", r.URL.Path)
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.CheckHealth(context.Background()); err != nil {
		t.Errorf("CheckHealth() error = %v", err)
	}
}

func TestCheckHealth_UnhealthyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"degraded"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.CheckHealth(context.Background()); err == nil {
		t.Error("CheckHealth() should fail for non-healthy status")
	}
}

func TestCheckHealth_CachesPositiveResult(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	for i := 0; i < 3; i++ {
		if err := c.CheckHealth(context.Background()); err != nil {
			t.Fatalf("CheckHealth() error = %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("server hit %d times, want 1 (cached)", calls.Load())
	}
}

func TestAnalyze_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"final_edit":[{"source_video":"v1.mp4","start_time":0,"end_time":5}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.Analyze(context.Background(), AnalyzeRequest{UserCommand: "highlight"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("server hit %d times, want 3", calls.Load())
	}
	if len(resp.FinalEdit) != 1 {
		t.Errorf("FinalEdit = %d segments, want 1", len(resp.FinalEdit))
	}
}

func TestAnalyze_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"bad request shape"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Analyze(context.Background(), AnalyzeRequest{UserCommand: "highlight"})
	if err == nil {
		t.Fatal("Analyze() should fail on 4xx")
	}
	if calls.Load() != 1 {
		t.Errorf("server hit %d times, want 1 (no retry on 4xx)", calls.Load())
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %T, want *RequestError", err)
	}
	if reqErr.IsRetryable() {
		t.Error("4xx must not be retryable")
	}
}

func TestAnalyze_ExhaustedRetriesSurfaceLastError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Analyze(context.Background(), AnalyzeRequest{UserCommand: "highlight"})
	if err == nil {
		t.Fatal("Analyze() should fail after exhausted retries")
	}
	if calls.Load() != maxAttempts {
		t.Errorf("server hit %d times, want %d", calls.Load(), maxAttempts)
	}
}

func TestAnalyze_SendsAuthAndEditMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"final_edit":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.Analyze(context.Background(), AnalyzeRequest{
		UserCommand: "trim the boring parts",
		EditMode:    true,
		PreviousPlan: []edit.EditSegment{
			{SourceVideo: "v1.mp4", StartTime: 0, EndTime: 5},
		},
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	// Empty plans pass through here; emptiness is the pipeline's call.
	if len(resp.FinalEdit) != 0 {
		t.Errorf("FinalEdit = %d segments, want 0", len(resp.FinalEdit))
	}
}

func TestCategory(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "server error", err: &RequestError{StatusCode: 503}, want: "server-error"},
		{name: "client error", err: &RequestError{StatusCode: 404}, want: "client-error"},
		{name: "timeout", err: context.DeadlineExceeded, want: "timeout"},
		{name: "network", err: errors.New("dial tcp: connection refused"), want: "no-connectivity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Category(tc.err); got != tc.want {
				t.Errorf("Category() = %s, want %s", got, tc.want)
			}
		})
	}
}
