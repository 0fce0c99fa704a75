package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/retry"
)

var tlsVersions = map[string]uint16{
	"tls1.0": tls.VersionTLS10,
	"tls1.1": tls.VersionTLS11,
	"tls1.2": tls.VersionTLS12,
	"tls1.3": tls.VersionTLS13,
}

// TLSProbe succeeds when a verified TLS handshake with the host completes.
type TLSProbe struct {
	base
	params     config.TLSParams
	addr       string
	minVersion uint16
	maxVersion uint16
	// rootCAs overrides the system pool.
	rootCAs *x509.CertPool
}

func newTLSProbe(def config.ProbeDef, group *config.Group, _ Deps) (Probe, error) {
	if def.TLS == nil || def.TLS.Host == "" {
		return nil, domain.MissingField("host")
	}
	params := *def.TLS
	if params.Port <= 0 {
		params.Port = 443
	}
	if params.HandshakeTimeout <= 0 {
		params.HandshakeTimeout = 15 * time.Second
	}

	p := &TLSProbe{params: params, addr: net.JoinHostPort(params.Host, strconv.Itoa(params.Port))}
	for _, name := range params.Protocols {
		v, ok := tlsVersions[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, &domain.ConfigError{Field: "protocols", Reason: fmt.Sprintf("unknown protocol %q", name)}
		}
		if p.minVersion == 0 || v < p.minVersion {
			p.minVersion = v
		}
		if v > p.maxVersion {
			p.maxVersion = v
		}
	}
	p.init(def, group)
	return p, nil
}

func (p *TLSProbe) Run(ctx context.Context) domain.CheckResult {
	p.markRun(time.Now())
	res, err := retry.Run(ctx, p.check, retryOptions(p.params.Retry, p.params.Timeout, "tls handshake "+p.addr))
	if err != nil {
		return domain.FromError("TLSProbe", err)
	}
	return res
}

func (p *TLSProbe) check(ctx context.Context) (domain.CheckResult, error) {
	start := time.Now()
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return domain.CheckResult{}, &domain.TransientError{Err: err}
	}
	defer raw.Close()

	conn := tls.Client(raw, &tls.Config{
		ServerName: p.params.Host,
		MinVersion: p.minVersion,
		MaxVersion: p.maxVersion,
		RootCAs:    p.rootCAs,
	})
	_ = conn.SetDeadline(time.Now().Add(p.params.HandshakeTimeout))

	hctx, cancel := context.WithTimeout(ctx, p.params.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(hctx); err != nil {
		return domain.CheckResult{}, fmt.Errorf("tls handshake with %s: %w", p.addr, err)
	}
	elapsed := time.Since(start)

	state := conn.ConnectionState()
	tags := domain.Tags{
		"RequestDuration":                  elapsed.String(),
		"RequestDuration." + p.params.Host: elapsed.String(),
		"Version":                          tls.VersionName(state.Version),
		"CipherSuite":                      tls.CipherSuiteName(state.CipherSuite),
	}
	if len(state.PeerCertificates) > 0 {
		tags["CertificateExpiresIn"] = time.Until(state.PeerCertificates[0].NotAfter).Round(time.Second).String()
	}
	return domain.NewResult(domain.Success, "", tags.Prefixed("TLSProbe")), nil
}
