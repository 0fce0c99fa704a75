package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/retry"
	"github.com/hamed0406/uptimeagent/internal/validation"
)

var (
	absoluteURIPlaceholder = regexp.MustCompile(`(?i)%%AbsoluteUri%%`)
	hostPlaceholder        = regexp.MustCompile(`(?i)%%Host%%`)
)

// udpIdle ends a UDP response once data has arrived and the peer went quiet.
const udpIdle = 500 * time.Millisecond

// SocketProbe sends a templated request over TCP or UDP and validates the
// raw response text. It serves the raw_socket, tcp and udp kinds.
type SocketProbe struct {
	base
	params      config.SocketParams
	validations []validation.TextValidator
	host        string
	addr        string
	request     string
}

func newSocketProbe(def config.ProbeDef, group *config.Group, _ Deps) (Probe, error) {
	if def.Socket == nil || def.Socket.URI == "" {
		return nil, domain.MissingField("uri")
	}
	if def.Socket.Port <= 0 || def.Socket.Port > 65535 {
		return nil, domain.MissingField("port")
	}
	if len(def.Validations) == 0 {
		return nil, domain.MissingField("validations")
	}
	vs, err := validation.Text(def.Validations)
	if err != nil {
		return nil, err
	}

	params := *def.Socket
	host := hostOf(params.URI)
	if host == "" {
		return nil, &domain.ConfigError{Field: "uri", Reason: "no host in " + params.URI}
	}
	template := params.Request
	if template == "" {
		template = config.DefaultSocketRequest
	}
	request := absoluteURIPlaceholder.ReplaceAllLiteralString(template, params.URI)
	request = hostPlaceholder.ReplaceAllLiteralString(request, host)

	p := &SocketProbe{
		params:      params,
		validations: vs,
		host:        host,
		addr:        net.JoinHostPort(host, strconv.Itoa(params.Port)),
		request:     request,
	}
	p.init(def, group)
	return p, nil
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return strings.Trim(raw, "[]")
}

func (p *SocketProbe) Run(ctx context.Context) domain.CheckResult {
	p.markRun(time.Now())
	res, err := retry.Run(ctx, p.check, retryOptions(p.params.Retry, p.params.Timeout, p.params.Network+" "+p.addr))
	if err != nil {
		return domain.FromError("SocketProbe", err)
	}
	return res
}

func (p *SocketProbe) check(ctx context.Context) (domain.CheckResult, error) {
	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(ctx, p.params.Network, p.addr)
	if err != nil {
		return domain.CheckResult{}, &domain.TransientError{Err: err}
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	connected := time.Since(start)

	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)

	if _, err := io.WriteString(conn, p.request); err != nil {
		return domain.CheckResult{}, &domain.TransientError{Err: err}
	}
	sent := time.Since(start)

	var response string
	if p.params.Network == "udp" {
		response, err = readDatagrams(conn, deadline)
	} else {
		var b []byte
		b, err = io.ReadAll(conn)
		response = string(b)
	}
	if err != nil {
		if ctx.Err() != nil {
			return domain.CheckResult{}, ctx.Err()
		}
		return domain.CheckResult{}, &domain.TransientError{Err: err}
	}
	complete := time.Since(start)

	tags := domain.Tags{
		"ConnectDuration":                    connected.String(),
		"ConnectDuration." + p.addr:          connected.String(),
		"RequestSentDuration":                sent.String(),
		"RequestSentDuration." + p.addr:      sent.String(),
		"ResponseCompleteDuration":           complete.String(),
		"ResponseCompleteDuration." + p.addr: complete.String(),
	}.Prefixed("SocketProbe")

	results := make([]domain.NamedResult, 0, len(p.validations))
	for _, v := range p.validations {
		results = append(results, domain.NamedResult{Name: v.Name(), Result: v.ValidateText(response)})
	}
	withTags(results, tags)

	return shortCircuit(domain.Aggregate(p.name, len(p.validations), p.params.SuccessThreshold, results, nil))
}

// readDatagrams reads until the peer stays quiet for udpIdle after the first
// datagram. UDP has no end of stream.
func readDatagrams(conn net.Conn, deadline time.Time) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 64<<10)
	for {
		d := deadline
		if sb.Len() > 0 {
			d = time.Now().Add(udpIdle)
		}
		_ = conn.SetReadDeadline(d)
		n, err := conn.Read(buf)
		sb.Write(buf[:n])
		if err == nil {
			continue
		}
		var ne net.Error
		if sb.Len() > 0 && errors.As(err, &ne) && ne.Timeout() {
			return sb.String(), nil
		}
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		return sb.String(), err
	}
}
