package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/retry"
	"github.com/hamed0406/uptimeagent/internal/transport"
	"github.com/hamed0406/uptimeagent/internal/validation"
)

const maxBodyBytes = 10 << 20

// statusError is a non-2xx answer when no validations are configured.
type statusError struct {
	status string
}

func (e *statusError) Error() string {
	return "response status code does not indicate success: " + e.status
}

func (e *statusError) Kind() string { return "HTTPRequestError" }

// HTTPProbe requests every configured URI concurrently. Each URI is retried on
// its own; the whole fan-out is bounded by the probe timeout.
type HTTPProbe struct {
	base
	params      config.HTTPParams
	validations []validation.HTTPValidator
	pool        *transport.Pool
}

func newHTTPProbe(def config.ProbeDef, group *config.Group, deps Deps) (Probe, error) {
	if def.HTTP == nil || len(def.HTTP.URIs) == 0 {
		return nil, domain.MissingField("uris")
	}
	vs, err := validation.HTTP(def.Validations)
	if err != nil {
		return nil, err
	}
	if _, err := deps.Pool.Client(def.HTTP.ProxyURL); err != nil {
		return nil, &domain.ConfigError{Field: "proxy_url", Reason: err.Error()}
	}
	p := &HTTPProbe{params: *def.HTTP, validations: vs, pool: deps.Pool}
	p.params.Method = strings.ToUpper(p.params.Method)
	if p.params.Method == "" {
		p.params.Method = http.MethodGet
	}
	p.init(def, group)
	return p, nil
}

func (p *HTTPProbe) Run(ctx context.Context) domain.CheckResult {
	p.markRun(time.Now())

	if p.params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.params.Timeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	results := newURIResults(len(p.params.URIs))
	for i, uri := range p.params.URIs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := retry.Run(ctx, func(ctx context.Context) (domain.CheckResult, error) {
				return p.checkURI(ctx, uri)
			}, retryOptions(p.params.Retry, p.params.PerURITimeout, "request "+uri))
			results.set(ctx, i, res, err)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var stopErr error
	select {
	case <-done:
	case <-ctx.Done():
		// results are fixed at the deadline; stragglers are cancelled and joined
		results.close()
		stopErr = ctx.Err()
		cancel()
		<-done
	}
	if stopErr == nil {
		stopErr = ctx.Err()
	}

	named := make([]domain.NamedResult, 0, len(results.list))
	for i, r := range results.list {
		uri := p.params.URIs[i]
		if r == nil {
			var err error = &domain.TimeoutError{Op: "uri " + uri + " check", After: p.params.Timeout}
			if !errors.Is(stopErr, context.DeadlineExceeded) {
				err = fmt.Errorf("uri %s check: %w", uri, stopErr)
			}
			res := domain.FromError("HTTPProbe", err)
			r = &res
		}
		named = append(named, domain.NamedResult{Name: uri, Result: *r})
	}
	return domain.Aggregate(p.name, len(p.params.URIs), p.params.SuccessThreshold, named, nil)
}

// uriResults collects per-URI outcomes until the overall deadline closes it.
type uriResults struct {
	mu     sync.Mutex
	closed bool
	list   []*domain.CheckResult
}

func newURIResults(n int) *uriResults {
	return &uriResults{list: make([]*domain.CheckResult, n)}
}

// set records the outcome for URI i. A failure caused by the overall context
// ending is dropped so that the URI is reported as unfinished at the deadline.
func (u *uriResults) set(ctx context.Context, i int, res domain.CheckResult, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed || (err != nil && ctx.Err() != nil) {
		return
	}
	if err != nil {
		res = domain.FromError("HTTPProbe", err)
	}
	u.list[i] = &res
}

func (u *uriResults) close() {
	u.mu.Lock()
	u.closed = true
	u.mu.Unlock()
}

func (p *HTTPProbe) checkURI(ctx context.Context, uri string) (domain.CheckResult, error) {
	client, err := p.pool.Client(p.params.ProxyURL)
	if err != nil {
		return domain.CheckResult{}, &domain.ConfigError{Field: "proxy_url", Reason: err.Error()}
	}

	var body io.Reader
	if p.params.Body != "" {
		body = strings.NewReader(p.params.Body)
	}
	req, err := http.NewRequestWithContext(ctx, p.params.Method, uri, body)
	if err != nil {
		return domain.CheckResult{}, &domain.ConfigError{Field: "uris", Reason: err.Error()}
	}
	for k, v := range p.params.Headers {
		if strings.EqualFold(k, "Host") {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return domain.CheckResult{}, &domain.TransientError{Err: err}
	}
	defer resp.Body.Close()

	tags := domain.Tags{
		"RequestDuration":        elapsed.String(),
		"RequestDuration." + uri: elapsed.String(),
	}.Prefixed("HTTPProbe")

	if len(p.validations) == 0 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return domain.NewResult(domain.Success, "", tags), nil
		}
		res := domain.FromError(fmt.Sprintf("HTTPProbe.%s(%s)", p.name, uri), &statusError{status: resp.Status})
		res.Tags.AddAll(tags)
		return res, nil
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	text := string(b)

	results := make([]domain.NamedResult, 0, len(p.validations))
	for _, v := range p.validations {
		results = append(results, domain.NamedResult{Name: v.Name(), Result: v.ValidateHTTP(resp, text)})
	}
	withTags(results, tags)

	return shortCircuit(domain.Aggregate(fmt.Sprintf("%s(%s)", p.name, uri), len(p.validations), p.params.PerURIThreshold, results, nil))
}
