package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/multierr"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/retry"
	"github.com/hamed0406/uptimeagent/internal/transport"
)

const ClientUIDHeader = "ClientUID"

type webhookItem struct {
	Key   string             `json:"key"`
	Value domain.CheckResult `json:"value"`
}

// Webhook POSTs the batch as JSON to every URI. It succeeds when at least one
// URI accepted it.
type Webhook struct {
	name     string
	params   config.WebhookParams
	pool     *transport.Pool
	clientID string
}

func NewWebhook(name string, p config.WebhookParams, pool *transport.Pool, clientID string) (*Webhook, error) {
	if len(p.URIs) == 0 {
		return nil, domain.MissingField("uris")
	}
	if pool == nil {
		pool = transport.NewPool(transport.DefaultLifetime)
	}
	return &Webhook{name: name, params: p, pool: pool, clientID: clientID}, nil
}

func (w *Webhook) Name() string { return w.name }

func (w *Webhook) Report(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	items := make([]webhookItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, webhookItem{Key: e.Label, Value: e.Result})
	}
	body, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
		ok   bool
	)
	for _, uri := range w.params.URIs {
		wg.Add(1)
		go func(uri string) {
			defer wg.Done()
			_, err := retry.Run(ctx, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, w.send(ctx, uri, body)
			}, retry.Options{
				Timeout:     w.params.PerURITimeout,
				MaxRetries:  w.params.MaxRetries,
				Delay:       w.params.RetryDelay,
				ShouldRetry: func(error) bool { return true },
				Op:          "webhook " + uri,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, err)
				return
			}
			ok = true
		}(uri)
	}
	wg.Wait()

	if ok {
		return nil
	}
	if errs == nil {
		errs = errors.New("no webhook accepted the report")
	}
	return errs
}

func (w *Webhook) send(ctx context.Context, uri string, body []byte) error {
	client, err := w.pool.Client(w.params.ProxyURL)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.params.Headers {
		req.Header.Set(k, v)
	}
	if w.clientID != "" {
		req.Header.Set(ClientUIDHeader, w.clientID)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook %s returned %s", uri, resp.Status)
	}
	return nil
}
