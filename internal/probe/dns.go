package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/retry"
	"github.com/hamed0406/uptimeagent/internal/validation"
)

// Resolver is the subset of *net.Resolver the DNS probe uses.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
}

// DNS failure classes.
const (
	dnsNXDomain    = "NXDOMAIN"
	dnsServFail    = "SERVFAIL_or_TIMEOUT"
	dnsInvalidName = "INVALID_NAME"
)

type DNSProbe struct {
	base
	params      config.DNSParams
	validations []validation.IPValidator
	resolver    Resolver
}

func newDNSProbe(def config.ProbeDef, group *config.Group, deps Deps) (Probe, error) {
	if def.DNS == nil {
		return nil, domain.MissingField("host")
	}
	host := strings.TrimSpace(def.DNS.Host)
	if host == "" {
		return nil, domain.MissingField("host")
	}
	if strings.Contains(host, "://") {
		return nil, &domain.ConfigError{Field: "host", Reason: dnsInvalidName + ": " + host}
	}
	if len(def.Validations) == 0 {
		return nil, domain.MissingField("validations")
	}
	vs, err := validation.IP(def.Validations)
	if err != nil {
		return nil, err
	}

	p := &DNSProbe{params: *def.DNS, validations: vs, resolver: deps.Resolver}
	p.params.Host = host
	p.init(def, group)
	if p.resolver == nil {
		p.resolver = net.DefaultResolver
	}
	return p, nil
}

func (p *DNSProbe) Run(ctx context.Context) domain.CheckResult {
	p.markRun(time.Now())
	res, err := retry.Run(ctx, p.check, retryOptions(p.params.Retry, p.params.Timeout, "dns lookup "+p.params.Host))
	if err != nil {
		return domain.FromError("DNSProbe", err)
	}
	return res
}

func (p *DNSProbe) check(ctx context.Context) (domain.CheckResult, error) {
	host := p.params.Host

	start := time.Now()
	addrs, err := p.resolver.LookupIPAddr(ctx, host)
	elapsed := time.Since(start)
	if err != nil {
		return domain.CheckResult{}, &domain.TransientError{Err: fmt.Errorf("%s: %s: %w", host, classifyDNSError(err), err)}
	}

	entry := validation.HostEntry{HostName: host}
	for _, a := range addrs {
		entry.Addresses = append(entry.Addresses, a.IP)
	}
	if cname, err := p.resolver.LookupCNAME(ctx, host); err == nil {
		cname = strings.TrimSuffix(cname, ".")
		if cname != "" && !strings.EqualFold(cname, host) {
			entry.HostName = cname
			entry.Aliases = []string{host}
		}
	}

	tags := domain.Tags{
		"RequestDuration":         elapsed.String(),
		"RequestDuration." + host: elapsed.String(),
	}
	if len(entry.Addresses) > 0 {
		ips := make([]string, 0, len(entry.Addresses))
		for _, ip := range entry.Addresses {
			ips = append(ips, ip.String())
		}
		sort.Strings(ips)
		tags["IPAddress."+host] = strings.Join(ips, ",")
	}
	if len(entry.Aliases) > 0 {
		aliases := append([]string(nil), entry.Aliases...)
		sort.Strings(aliases)
		tags["Aliases."+host] = strings.Join(aliases, ",")
	}
	tags["ResultHostName."+host] = entry.HostName
	tags = tags.Prefixed("DNSProbe")

	results := make([]domain.NamedResult, 0, len(p.validations))
	for _, v := range p.validations {
		results = append(results, domain.NamedResult{Name: v.Name(), Result: v.ValidateIP(entry)})
	}
	withTags(results, tags)

	return shortCircuit(domain.Aggregate(p.name, len(p.validations), p.params.SuccessThreshold, results, nil))
}

func classifyDNSError(err error) string {
	var de *net.DNSError
	if errors.As(err, &de) {
		if de.IsNotFound {
			return dnsNXDomain
		}
		if de.IsTemporary || de.Timeout() {
			return dnsServFail
		}
	}
	return dnsServFail
}
