package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/uptimeagent/internal/validation"
)

type ProbeKind string

const (
	KindDNS       ProbeKind = "dns"
	KindHTTP      ProbeKind = "http"
	KindRawSocket ProbeKind = "raw_socket"
	KindTCP       ProbeKind = "tcp"
	KindUDP       ProbeKind = "udp"
	KindTLS       ProbeKind = "tls"
	KindPing      ProbeKind = "ping"
	KindExec      ProbeKind = "exec"
)

// ProbeDef is one configured probe. Exactly one of the parameter blocks is
// set, chosen by Kind.
type ProbeDef struct {
	Kind         ProbeKind        `yaml:"kind"`
	Name         string           `yaml:"name"`
	Order        int              `yaml:"order"`
	MinInterval  *time.Duration   `yaml:"min_interval"`
	ReportGroups []string         `yaml:"report_groups"`
	Validations  []validation.Def `yaml:"validations"`

	DNS    *DNSParams    `yaml:"-"`
	HTTP   *HTTPParams   `yaml:"-"`
	Socket *SocketParams `yaml:"-"`
	TLS    *TLSParams    `yaml:"-"`
	Ping   *PingParams   `yaml:"-"`
	Exec   *ExecParams   `yaml:"-"`
}

// Retry holds the attempt policy shared by every probe kind.
type Retry struct {
	MaxRetries       int           `yaml:"max_retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	Timeout          time.Duration `yaml:"timeout"`
	SuccessThreshold int           `yaml:"success_threshold_percent"`
}

func defaultRetry(timeout time.Duration) Retry {
	return Retry{MaxRetries: 3, RetryDelay: 5 * time.Second, Timeout: timeout, SuccessThreshold: 99}
}

type DNSParams struct {
	Host  string `yaml:"host"`
	Retry `yaml:",inline"`
}

type HTTPParams struct {
	Method          string            `yaml:"method"`
	URIs            []string          `yaml:"uris"`
	Headers         map[string]string `yaml:"headers"`
	Body            string            `yaml:"body"`
	PerURITimeout   time.Duration     `yaml:"per_uri_timeout"`
	PerURIThreshold int               `yaml:"per_uri_success_threshold_percent"`
	ProxyURL        string            `yaml:"proxy_url"`
	Retry           `yaml:",inline"`
}

// SocketParams serves raw_socket, tcp and udp. Network is fixed for tcp and udp.
type SocketParams struct {
	Network string `yaml:"network"`
	URI     string `yaml:"uri"`
	Port    int    `yaml:"port"`
	Request string `yaml:"request"`
	Retry   `yaml:",inline"`
}

type TLSParams struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// Protocols lists allowed versions: tls1.0, tls1.1, tls1.2, tls1.3.
	Protocols []string `yaml:"protocols"`
	Retry     `yaml:",inline"`
}

type PingParams struct {
	Hosts            []string      `yaml:"hosts"`
	PerHostTimeout   time.Duration `yaml:"per_host_timeout"`
	PerHostThreshold int           `yaml:"per_host_success_threshold_percent"`
	Privileged       bool          `yaml:"privileged"`
	Retry            `yaml:",inline"`
}

type ExecParams struct {
	Command       string            `yaml:"command"`
	Args          []string          `yaml:"args"`
	Env           map[string]string `yaml:"env"`
	WaitForExit   bool              `yaml:"wait_for_exit"`
	WaitTimeout   time.Duration     `yaml:"wait_timeout"`
	MinWait       time.Duration     `yaml:"min_wait"`
	KillIfRunning bool              `yaml:"kill_if_running"`

	CleanupCommand       string            `yaml:"cleanup_command"`
	CleanupArgs          []string          `yaml:"cleanup_args"`
	CleanupEnv           map[string]string `yaml:"cleanup_env"`
	CleanupWaitForExit   bool              `yaml:"cleanup_wait_for_exit"`
	CleanupWaitTimeout   time.Duration     `yaml:"cleanup_wait_timeout"`
	CleanupMinWait       time.Duration     `yaml:"cleanup_min_wait"`
	CleanupKillIfRunning bool              `yaml:"cleanup_kill_if_running"`

	CaptureStdout bool `yaml:"capture_stdout"`
	CaptureStderr bool `yaml:"capture_stderr"`
	Retry         `yaml:",inline"`
}

// DefaultSocketRequest is a minimal HTTP/1.1 GET.
const DefaultSocketRequest = "GET %%AbsoluteUri%% HTTP/1.1\r\nHost: %%Host%%\r\nConnection: Close\r\n\r\n"

func (p *ProbeDef) UnmarshalYAML(value *yaml.Node) error {
	type plain ProbeDef
	var common plain
	if err := value.Decode(&common); err != nil {
		return err
	}
	*p = ProbeDef(common)

	var params any
	switch p.Kind {
	case KindDNS:
		p.DNS = &DNSParams{Retry: defaultRetry(30 * time.Second)}
		params = p.DNS
	case KindHTTP:
		p.HTTP = &HTTPParams{
			Method:          "GET",
			PerURITimeout:   30 * time.Second,
			PerURIThreshold: 99,
			Retry:           defaultRetry(300 * time.Second),
		}
		params = p.HTTP
	case KindRawSocket, KindTCP, KindUDP:
		p.Socket = &SocketParams{Network: "tcp", Request: DefaultSocketRequest, Retry: defaultRetry(30 * time.Second)}
		params = p.Socket
	case KindTLS:
		p.TLS = &TLSParams{Port: 443, HandshakeTimeout: 15 * time.Second, Retry: defaultRetry(30 * time.Second)}
		params = p.TLS
	case KindPing:
		p.Ping = &PingParams{PerHostTimeout: 30 * time.Second, PerHostThreshold: 99, Retry: defaultRetry(90 * time.Second)}
		params = p.Ping
	case KindExec:
		p.Exec = &ExecParams{
			WaitTimeout:        300 * time.Second,
			CleanupWaitForExit: true,
			CleanupWaitTimeout: 300 * time.Second,
			CleanupMinWait:     30 * time.Second,
			CaptureStdout:      true,
			CaptureStderr:      true,
			Retry:              defaultRetry(time.Hour),
		}
		params = p.Exec
	case "":
		return fmt.Errorf("line %d: probe %q has no kind", value.Line, p.Name)
	default:
		return fmt.Errorf("line %d: probe %q has unknown kind %q", value.Line, p.Name, p.Kind)
	}
	if err := value.Decode(params); err != nil {
		return err
	}

	switch p.Kind {
	case KindTCP:
		p.Socket.Network = "tcp"
	case KindUDP:
		p.Socket.Network = "udp"
	}
	return nil
}

// EffectiveMinInterval is the probe override, else the group override, else zero.
func (p *ProbeDef) EffectiveMinInterval(g *Group) time.Duration {
	if p.MinInterval != nil {
		return *p.MinInterval
	}
	if g != nil && g.MinInterval != nil {
		return *g.MinInterval
	}
	return 0
}
