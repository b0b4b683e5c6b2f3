package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"boardline/internal/config"
	"boardline/internal/events"
)

const (
	webhookTimeout   = 5 * time.Second
	webhookQueueSize = 256
)

// webhookDispatcher forwards bus events to configured URLs. Handlers on the
// bus run synchronously inside engine calls, so the handler only enqueues;
// a single worker goroutine does the HTTP delivery. A full queue drops the
// event rather than stalling the engine.
type webhookDispatcher struct {
	hooks  []config.Webhook
	client *http.Client
	queue  chan webhookEvent
	logger *slog.Logger
}

type webhookEvent struct {
	Event   string `json:"event"`
	TS      string `json:"ts"`
	Payload any    `json:"payload"`
}

// StartWebhooks wires the configured webhooks onto the bus and starts the
// delivery worker. Stop by cancelling ctx.
func StartWebhooks(ctx context.Context, bus *events.Bus, hooks []config.Webhook, logger *slog.Logger) {
	if len(hooks) == 0 || bus == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &webhookDispatcher{
		hooks:  hooks,
		client: &http.Client{Timeout: webhookTimeout},
		queue:  make(chan webhookEvent, webhookQueueSize),
		logger: logger,
	}
	for _, name := range []string{
		events.BoardCreated, events.BoardUpdated, events.BoardDeleted,
		events.TicketCreated, events.TicketUpdated, events.TicketDeleted,
		events.CommentCreated,
	} {
		name := name
		bus.Subscribe(name, func(payload any) {
			d.enqueue(name, payload)
		})
	}
	go d.run(ctx)
}

func (d *webhookDispatcher) enqueue(event string, payload any) {
	evt := webhookEvent{
		Event:   event,
		TS:      time.Now().UTC().Format(time.RFC3339),
		Payload: payload,
	}
	select {
	case d.queue <- evt:
	default:
		d.logger.Warn("webhook queue full, dropping event", "event", event)
	}
}

func (d *webhookDispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-d.queue:
			for _, hook := range d.hooks {
				if !matchesFilter(hook.Events, evt.Event) {
					continue
				}
				if err := d.post(ctx, hook.URL, evt); err != nil {
					d.logger.Warn("webhook delivery failed", "url", hook.URL, "event", evt.Event, "error", err)
				}
			}
		}
	}
}

func matchesFilter(filter []string, event string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == event {
			return true
		}
	}
	return false
}

func (d *webhookDispatcher) post(ctx context.Context, url string, evt webhookEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Boardline-Event", evt.Event)
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
