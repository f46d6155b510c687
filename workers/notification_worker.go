// workers/notification_worker.go
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"habit-league/telemetry"
	"habit-league/utils"

	"golang.org/x/time/rate"
)

const defaultQueueSize = 256

// PushMessage is the body posted to the push relay.
type PushMessage struct {
	UserIDs []string `json:"user_ids"`
	Title   string   `json:"title"`
	Body    string   `json:"body"`
}

// PushDispatcher queues notifications and posts them to the push relay in the
// background. Notify never blocks; a full queue drops the message.
type PushDispatcher struct {
	relayURL   string
	token      string
	queue      chan PushMessage
	limiter    *rate.Limiter
	httpClient *http.Client
	metrics    *telemetry.Metrics
}

type PushDispatcherOptions struct {
	QueueSize  int
	RatePerSec float64
	Burst      int
	HTTPClient *http.Client
	Metrics    *telemetry.Metrics
}

func NewPushDispatcher(relayURL, token string, opts PushDispatcherOptions) *PushDispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = utils.HTTPClient
	}
	return &PushDispatcher{
		relayURL:   relayURL,
		token:      token,
		queue:      make(chan PushMessage, opts.QueueSize),
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		httpClient: opts.HTTPClient,
		metrics:    opts.Metrics,
	}
}

// Notify enqueues a push for the given members.
func (d *PushDispatcher) Notify(_ context.Context, memberIDs []string, title, body string) {
	if len(memberIDs) == 0 {
		return
	}
	msg := PushMessage{UserIDs: append([]string(nil), memberIDs...), Title: title, Body: body}
	select {
	case d.queue <- msg:
		d.metrics.NotificationQueued()
	default:
		d.metrics.NotificationFailed()
		log.Printf("[PUSH] ⚠️ queue full, dropping %q for %d member(s)", title, len(memberIDs))
	}
}

func (d *PushDispatcher) Start(ctx context.Context) {
	log.Printf("🔔 Starting push dispatcher → %s", d.relayURL)
	go d.Run(ctx)
}

// Run delivers queued messages until ctx is cancelled.
func (d *PushDispatcher) Run(ctx context.Context) {
	for {
		select {
		case msg := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			if err := d.send(ctx, msg); err != nil {
				d.metrics.NotificationFailed()
				log.Printf("[PUSH] ❌ %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Push dispatcher stopped")
			return
		}
	}
}

func (d *PushDispatcher) send(ctx context.Context, msg PushMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode push: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, d.relayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push relay request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("push relay returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
