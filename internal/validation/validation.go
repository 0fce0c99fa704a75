// Package validation holds the rules a probe applies to what it observed.
// A validator never fails with an error; a broken rule yields a
// BadConfiguration result instead.
package validation

import (
	"fmt"
	"net"
	"net/http"

	"github.com/hamed0406/uptimeagent/internal/domain"
)

type Kind string

const (
	KindMustContain         Kind = "must_contain"
	KindMustNotContain      Kind = "must_not_contain"
	KindExpectStatusCodes   Kind = "expect_status_codes"
	KindExpectContentLength Kind = "expect_content_length"
	KindExpectExitCode      Kind = "expect_exit_code"
)

// Capability is what a validator can look at.
type Capability int

const (
	CapHTTP Capability = iota
	CapText
	CapIP
	CapExit
)

func (c Capability) String() string {
	switch c {
	case CapHTTP:
		return "http"
	case CapText:
		return "text"
	case CapIP:
		return "ip"
	case CapExit:
		return "exit"
	default:
		return fmt.Sprintf("Capability(%d)", int(c))
	}
}

var capabilities = map[Kind][]Capability{
	KindMustContain:         {CapHTTP, CapText, CapIP},
	KindMustNotContain:      {CapHTTP, CapText, CapIP},
	KindExpectStatusCodes:   {CapHTTP},
	KindExpectContentLength: {CapHTTP},
	KindExpectExitCode:      {CapExit},
}

// Known reports whether k names a validation kind.
func Known(k Kind) bool {
	_, ok := capabilities[k]
	return ok
}

// Supports reports whether validations of kind k can run against c.
func Supports(k Kind, c Capability) bool {
	for _, have := range capabilities[k] {
		if have == c {
			return true
		}
	}
	return false
}

type Validation interface {
	Name() string
}

type HTTPValidator interface {
	Validation
	ValidateHTTP(resp *http.Response, body string) domain.CheckResult
}

type TextValidator interface {
	Validation
	ValidateText(text string) domain.CheckResult
}

// HostEntry is a resolved host as DNS and ping probes see it.
type HostEntry struct {
	HostName  string
	Addresses []net.IP
	Aliases   []string
}

type IPValidator interface {
	Validation
	ValidateIP(entry HostEntry) domain.CheckResult
}

type ExitValidator interface {
	Validation
	// ValidateExit receives a nil exitCode while the process is still running.
	ValidateExit(exitCode *int, stdout, stderr string) domain.CheckResult
}

// Params carries the settings of every validation kind; each kind reads its own.
type Params struct {
	Text             string  `yaml:"text,omitempty" json:"text,omitempty"`
	CaseSensitive    bool    `yaml:"case_sensitive,omitempty" json:"case_sensitive,omitempty"`
	StatusCodes      []int   `yaml:"status_codes,omitempty" json:"status_codes,omitempty"`
	ContentLength    int     `yaml:"content_length,omitempty" json:"content_length,omitempty"`
	ThresholdPercent float64 `yaml:"threshold_percent,omitempty" json:"threshold_percent,omitempty"`
	ExitCodes        []int   `yaml:"exit_codes,omitempty" json:"exit_codes,omitempty"`
}

// Def is one configured validation.
type Def struct {
	Kind   Kind `yaml:"kind" json:"kind"`
	Params `yaml:",inline"`
}

// New builds the validator described by d.
func New(d Def) (Validation, error) {
	switch d.Kind {
	case KindMustContain:
		return &MustContain{Text: d.Text, CaseSensitive: d.CaseSensitive}, nil
	case KindMustNotContain:
		return &MustContain{Text: d.Text, CaseSensitive: d.CaseSensitive, Negate: true}, nil
	case KindExpectStatusCodes:
		return &ExpectStatusCodes{Codes: d.StatusCodes}, nil
	case KindExpectContentLength:
		return &ExpectContentLength{Expected: d.ContentLength, ThresholdPercent: d.ThresholdPercent}, nil
	case KindExpectExitCode:
		return &ExpectExitCode{Codes: d.ExitCodes}, nil
	default:
		return nil, &domain.ConfigError{Field: "validations.kind", Reason: fmt.Sprintf("unknown validation kind %q", d.Kind)}
	}
}

func build[V any](defs []Def, c Capability) ([]V, error) {
	out := make([]V, 0, len(defs))
	for i, d := range defs {
		v, err := New(d)
		if err != nil {
			return nil, err
		}
		if !Supports(d.Kind, c) {
			return nil, &domain.ConfigError{
				Field:  fmt.Sprintf("validations[%d]", i),
				Reason: fmt.Sprintf("%q cannot validate %s results", d.Kind, c),
			}
		}
		out = append(out, v.(V))
	}
	return out, nil
}

func HTTP(defs []Def) ([]HTTPValidator, error) { return build[HTTPValidator](defs, CapHTTP) }
func Text(defs []Def) ([]TextValidator, error) { return build[TextValidator](defs, CapText) }
func IP(defs []Def) ([]IPValidator, error)     { return build[IPValidator](defs, CapIP) }
func Exit(defs []Def) ([]ExitValidator, error) { return build[ExitValidator](defs, CapExit) }
