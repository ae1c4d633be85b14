package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeliver_SignsBody(t *testing.T) {
	var gotSig string
	var gotEvent Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		if want := Sign("s3cret", body); gotSig != want {
			t.Errorf("signature = %q, want %q", gotSig, want)
		}
		_ = json.Unmarshal(body, &gotEvent)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewSender("s3cret")
	ev := NewEvent(EventRenderCompleted, "r-1", map[string]int{"status_code": 200})
	if err := s.Deliver(t.Context(), srv.URL, ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if gotEvent.Type != EventRenderCompleted || gotEvent.RenderID != "r-1" {
		t.Errorf("event = %+v", gotEvent)
	}
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sig := r.Header.Get(SignatureHeader); sig != "" {
			t.Errorf("unexpected signature %q", sig)
		}
	}))
	defer srv.Close()

	if err := NewSender("").Deliver(t.Context(), srv.URL, NewEvent(EventRenderFailed, "r-2", nil)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
}

func TestDeliverAsync_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	s := NewSender("")
	s.Delays = []time.Duration{0, time.Millisecond, time.Millisecond}

	select {
	case err := <-s.DeliverAsync(srv.URL, NewEvent(EventRenderCompleted, "r-3", nil)):
		if err != nil {
			t.Fatalf("final error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestDeliverAsync_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSender("")
	s.Delays = []time.Duration{0, time.Millisecond}
	if err := <-s.DeliverAsync(srv.URL, NewEvent(EventRenderCompleted, "r-4", nil)); err == nil {
		t.Error("expected an error after exhausting retries")
	}
}

func TestDrain_FlushesPendingRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	s := NewSender("")
	s.Delays = []time.Duration{0, time.Hour}
	result := s.DeliverAsync(srv.URL, NewEvent(EventRenderCompleted, "r-5", nil))

	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if err := s.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if err := <-result; err != nil {
		t.Errorf("delivery error = %v, want retry to succeed during drain", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}

	if err := <-s.DeliverAsync(srv.URL, NewEvent(EventRenderCompleted, "r-6", nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("delivery after drain = %v, want ErrClosed", err)
	}
}

func TestDrain_RespectsDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	s := NewSender("")
	s.Delays = []time.Duration{0}
	result := s.DeliverAsync(srv.URL, NewEvent(EventRenderCompleted, "r-7", nil))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	if err := s.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Drain = %v, want deadline exceeded", err)
	}
	release <- struct{}{}
	<-result
}
