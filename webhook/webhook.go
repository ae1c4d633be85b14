package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ErrClosed is returned for deliveries requested after Drain.
var ErrClosed = errors.New("webhook: sender is draining")

// Event types.
const (
	EventRenderCompleted = "render.completed"
	EventRenderFailed    = "render.failed"
)

// SignatureHeader carries "sha256=<hex HMAC of the body>" when a secret is set.
const SignatureHeader = "X-Pagerender-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	RenderID  string `json:"render_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType, renderID string, data any) *Event {
	return &Event{Type: eventType, RenderID: renderID, Timestamp: time.Now().Unix(), Data: data}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Sender delivers events over HTTP.
type Sender struct {
	Client *http.Client
	Secret string

	// Delays are the waits before each attempt; len(Delays) is the attempt count.
	Delays []time.Duration

	mu       sync.Mutex
	closed   bool
	draining chan struct{}
	inflight sync.WaitGroup
}

// NewSender returns a Sender with a 10s client timeout and retries after
// 1s, 5s and 30s.
func NewSender(secret string) *Sender {
	return &Sender{
		Client: &http.Client{Timeout: 10 * time.Second},
		Secret: secret,
		Delays: []time.Duration{0, time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// Deliver sends event to url once.
func (s *Sender) Deliver(ctx context.Context, url string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Pagerender-Webhook/1.0")
	if s.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(s.Secret, body))
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync sends event in the background, retrying per s.Delays. The
// returned channel receives the final error (nil on success) and is closed.
// After Drain it fails immediately with ErrClosed.
func (s *Sender) DeliverAsync(url string, event *Event) <-chan error {
	done := make(chan error, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		done <- ErrClosed
		close(done)
		return done
	}
	draining := s.drainCh()
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		defer close(done)
		var err error
		for attempt, delay := range s.Delays {
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-draining:
					// Shutting down: retry now instead of after the delay.
				}
				timer.Stop()
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.Client.Timeout+time.Second)
			err = s.Deliver(ctx, url, event)
			cancel()
			if err == nil {
				slog.Info("webhook delivered",
					"url", url,
					"event", event.Type,
					"render_id", event.RenderID,
					"attempt", attempt+1,
				)
				done <- nil
				return
			}
			slog.Warn("webhook delivery failed",
				"url", url,
				"event", event.Type,
				"render_id", event.RenderID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		slog.Error("webhook delivery exhausted all retries",
			"url", url,
			"event", event.Type,
			"render_id", event.RenderID,
		)
		done <- err
	}()
	return done
}

// Drain stops accepting deliveries, makes pending retries fire without
// their remaining delay, and waits for in-flight deliveries until ctx is done.
func (s *Sender) Drain(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.drainCh())
	}
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("webhook: drain: %w", ctx.Err())
	}
}

// drainCh returns the channel closed by Drain. s.mu must be held.
func (s *Sender) drainCh() chan struct{} {
	if s.draining == nil {
		s.draining = make(chan struct{})
	}
	return s.draining
}
