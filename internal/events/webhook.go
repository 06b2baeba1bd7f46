package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"orderflow/internal/config"
	"orderflow/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookPublisher POSTs each committed event to one endpoint.
type WebhookPublisher struct {
	Hook   config.WebhookConfig
	Client *http.Client
	filter eventFilter
}

func NewWebhookPublisher(hook config.WebhookConfig) *WebhookPublisher {
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	return &WebhookPublisher{
		Hook:   hook,
		Client: &http.Client{Timeout: timeout},
		filter: newEventFilter(hook.Events),
	}
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

// Publish delivers matching events in order and stops at the first failure.
func (p *WebhookPublisher) Publish(ctx context.Context, evts ...domain.Event) error {
	for _, evt := range evts {
		if !p.filter.match(evt.Type) {
			continue
		}
		if err := p.post(ctx, evt); err != nil {
			return fmt.Errorf("webhook %s: event %d: %w", p.Hook.URL, evt.ID, err)
		}
	}
	return nil
}

func (p *WebhookPublisher) post(ctx context.Context, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Orderflow-Event", evt.Type)
	req.Header.Set("X-Orderflow-Delivery", fmt.Sprintf("%d", evt.ID))
	if strings.TrimSpace(p.Hook.Secret) != "" {
		req.Header.Set("X-Orderflow-Secret", p.Hook.Secret)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
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

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}

// Fanout publishes to every sink and reports all failures together.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evts ...domain.Event) error {
	var result *multierror.Error
	for _, p := range f {
		if err := p.Publish(ctx, evts...); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
