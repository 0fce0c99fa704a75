package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/retry"
	"github.com/hamed0406/uptimeagent/internal/validation"
)

// PingReply is one ICMP echo reply.
type PingReply struct {
	Addr net.IP
	RTT  time.Duration
	TTL  int
}

// Pinger sends one ICMP echo to host.
type Pinger interface {
	Ping(ctx context.Context, host string) (PingReply, error)
}

// PingProbe pings its hosts one after another; each host is retried on its own.
type PingProbe struct {
	base
	params      config.PingParams
	validations []validation.IPValidator
	pinger      Pinger
}

func newPingProbe(def config.ProbeDef, group *config.Group, deps Deps) (Probe, error) {
	if def.Ping == nil || len(def.Ping.Hosts) == 0 {
		return nil, domain.MissingField("hosts")
	}
	vs, err := validation.IP(def.Validations)
	if err != nil {
		return nil, err
	}
	p := &PingProbe{params: *def.Ping, validations: vs, pinger: deps.Pinger}
	if p.pinger == nil {
		p.pinger = &ICMPPinger{Privileged: def.Ping.Privileged}
	}
	p.init(def, group)
	return p, nil
}

func (p *PingProbe) Run(ctx context.Context) domain.CheckResult {
	p.markRun(time.Now())

	if p.params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.params.Timeout)
		defer cancel()
	}

	results := make([]domain.NamedResult, 0, len(p.params.Hosts))
	for _, host := range p.params.Hosts {
		if ctx.Err() != nil {
			break
		}
		res, err := retry.Run(ctx, func(ctx context.Context) (domain.CheckResult, error) {
			return p.pingHost(ctx, host)
		}, retryOptions(p.params.Retry, p.params.PerHostTimeout, "ping "+host))
		if err != nil {
			res = domain.FromError("PingProbe", err)
		}
		results = append(results, domain.NamedResult{Name: host, Result: res})
	}
	return domain.Aggregate(p.name, len(p.params.Hosts), p.params.SuccessThreshold, results, nil)
}

func (p *PingProbe) pingHost(ctx context.Context, host string) (domain.CheckResult, error) {
	reply, err := p.pinger.Ping(ctx, host)
	if err != nil {
		return domain.CheckResult{}, &domain.TransientError{Err: err}
	}
	tags := domain.Tags{
		"RoundtripTime": reply.RTT.String(),
		"TTL":           strconv.Itoa(reply.TTL),
		"Status":        "Success",
		"IPAddress":     reply.Addr.String(),
		"HostName":      host,
	}.Prefixed("PingProbe")

	if len(p.validations) == 0 {
		return domain.NewResult(domain.Success, "", tags), nil
	}

	entry := validation.HostEntry{Addresses: []net.IP{reply.Addr}}
	results := make([]domain.NamedResult, 0, len(p.validations))
	for _, v := range p.validations {
		results = append(results, domain.NamedResult{Name: v.Name(), Result: v.ValidateIP(entry)})
	}
	withTags(results, tags)

	return shortCircuit(domain.Aggregate(fmt.Sprintf("%s(%s)", p.name, host), len(p.validations), p.params.PerHostThreshold, results, nil))
}

// ICMPPinger pings over a raw ICMP socket when Privileged, otherwise over an
// unprivileged datagram ICMP socket.
type ICMPPinger struct {
	Privileged bool
	seq        atomic.Uint32
}

func (pg *ICMPPinger) Ping(ctx context.Context, host string) (PingReply, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return PingReply{}, err
	}
	if len(addrs) == 0 {
		return PingReply{}, fmt.Errorf("ping %s: no addresses", host)
	}
	ip := addrs[0].IP
	for _, a := range addrs {
		if a.IP.To4() != nil {
			ip = a.IP
			break
		}
	}
	v4 := ip.To4() != nil

	network, proto := "udp6", 58
	var echoType icmp.Type = ipv6.ICMPTypeEchoRequest
	if v4 {
		network, proto, echoType = "udp4", 1, ipv4.ICMPTypeEcho
	}
	if pg.Privileged {
		network = "ip4:icmp"
		if !v4 {
			network = "ip6:ipv6-icmp"
		}
	}

	conn, err := icmp.ListenPacket(network, "")
	if err != nil {
		return PingReply{}, fmt.Errorf("ping %s: %w", host, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	id := os.Getpid() & 0xffff
	seq := int(pg.seq.Add(1) & 0xffff)
	msg := icmp.Message{Type: echoType, Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte("uptimeagent")}}
	b, err := msg.Marshal(nil)
	if err != nil {
		return PingReply{}, err
	}

	var dst net.Addr = &net.UDPAddr{IP: ip}
	if pg.Privileged {
		dst = &net.IPAddr{IP: ip}
	}

	ttl := 0
	if v4 {
		if pc := conn.IPv4PacketConn(); pc != nil {
			_ = pc.SetControlMessage(ipv4.FlagTTL, true)
		}
	} else if pc := conn.IPv6PacketConn(); pc != nil {
		_ = pc.SetControlMessage(ipv6.FlagHopLimit, true)
	}

	start := time.Now()
	if _, err := conn.WriteTo(b, dst); err != nil {
		return PingReply{}, fmt.Errorf("ping %s: %w", host, err)
	}

	buf := make([]byte, 1500)
	for {
		var n int
		if v4 {
			var cm *ipv4.ControlMessage
			n, cm, _, err = conn.IPv4PacketConn().ReadFrom(buf)
			if cm != nil {
				ttl = cm.TTL
			}
		} else {
			var cm *ipv6.ControlMessage
			n, cm, _, err = conn.IPv6PacketConn().ReadFrom(buf)
			if cm != nil {
				ttl = cm.HopLimit
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return PingReply{}, ctx.Err()
			}
			return PingReply{}, fmt.Errorf("ping %s: %w", host, err)
		}
		rtt := time.Since(start)

		reply, err := icmp.ParseMessage(proto, buf[:n])
		if err != nil {
			continue
		}
		switch reply.Type {
		case ipv4.ICMPTypeEchoReply, ipv6.ICMPTypeEchoReply:
			echo, ok := reply.Body.(*icmp.Echo)
			// unprivileged sockets get their echo id rewritten by the kernel
			if !ok || echo.Seq != seq || (pg.Privileged && echo.ID != id) {
				continue
			}
			return PingReply{Addr: ip, RTT: rtt, TTL: ttl}, nil
		case ipv4.ICMPTypeEcho, ipv6.ICMPTypeEchoRequest:
			continue
		default:
			return PingReply{}, errors.New("ping " + host + ": status " + fmt.Sprint(reply.Type))
		}
	}
}
