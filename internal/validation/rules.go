package validation

import (
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/hamed0406/uptimeagent/internal/domain"
)

// MustContain succeeds when Text occurs in the observed value. With Negate it
// succeeds when Text does not occur.
type MustContain struct {
	Text          string
	CaseSensitive bool
	Negate        bool
}

func (m *MustContain) Name() string {
	if m.Negate {
		return "MustNotContain"
	}
	return "MustContain"
}

func (m *MustContain) sensitivity() string {
	if m.CaseSensitive {
		return "case sensitive"
	}
	return "not case sensitive"
}

func (m *MustContain) ValidateHTTP(_ *http.Response, body string) domain.CheckResult {
	return m.ValidateText(body)
}

func (m *MustContain) ValidateText(text string) domain.CheckResult {
	if strings.TrimSpace(m.Text) == "" {
		return domain.NewResult(domain.BadConfiguration, m.Name()+": text is empty", nil)
	}
	found := m.contains(text)
	switch {
	case found && !m.Negate, !found && m.Negate:
		return domain.NewResult(domain.Success, "", nil)
	case m.Negate:
		return domain.NewResult(domain.Failure, fmt.Sprintf("%s: Found %s (%s) in response (length: %d)",
			m.Name(), m.Text, m.sensitivity(), len(text)), nil)
	default:
		return domain.NewResult(domain.Failure, fmt.Sprintf("%s: Cannot find %s (%s) in response (length: %d)",
			m.Name(), m.Text, m.sensitivity(), len(text)), nil)
	}
}

func (m *MustContain) contains(text string) bool {
	if m.CaseSensitive {
		return strings.Contains(text, m.Text)
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(m.Text))
}

// ValidateIP matches Text against the addresses, host name and aliases of entry.
func (m *MustContain) ValidateIP(entry HostEntry) domain.CheckResult {
	if strings.TrimSpace(m.Text) == "" {
		return domain.NewResult(domain.BadConfiguration, m.Name()+": text is empty", nil)
	}
	found := m.matchesEntry(entry)
	if found != m.Negate {
		return domain.NewResult(domain.Success, "", nil)
	}
	verb := "Cannot find"
	if m.Negate {
		verb = "Found"
	}
	return domain.NewResult(domain.Failure, fmt.Sprintf("%s: %s %s (%s) in host entry", m.Name(), verb, m.Text, m.sensitivity()), nil)
}

func (m *MustContain) matchesEntry(entry HostEntry) bool {
	if ip := net.ParseIP(m.Text); ip != nil {
		for _, a := range entry.Addresses {
			if a.Equal(ip) {
				return true
			}
		}
	}
	equal := strings.EqualFold
	if m.CaseSensitive {
		equal = func(a, b string) bool { return a == b }
	}
	if entry.HostName != "" && equal(entry.HostName, m.Text) {
		return true
	}
	for _, a := range entry.Aliases {
		if equal(a, m.Text) {
			return true
		}
	}
	return false
}

type ExpectStatusCodes struct {
	Codes []int
}

func (e *ExpectStatusCodes) Name() string { return "ExpectStatusCodes" }

func (e *ExpectStatusCodes) ValidateHTTP(resp *http.Response, _ string) domain.CheckResult {
	tags := domain.Tags{e.Name() + ".StatusCode": strconv.Itoa(resp.StatusCode)}
	if len(e.Codes) == 0 {
		return domain.NewResult(domain.BadConfiguration, e.Name()+": status_codes is empty", tags)
	}
	if slices.Contains(e.Codes, resp.StatusCode) {
		return domain.NewResult(domain.Success, "", tags)
	}
	return domain.NewResult(domain.Failure,
		fmt.Sprintf("%s: Not expected status code: %d from response.", e.Name(), resp.StatusCode), tags)
}

// ExpectContentLength compares the Content-Length header, or the body length
// when the header is missing, with Expected give or take ThresholdPercent.
type ExpectContentLength struct {
	Expected         int
	ThresholdPercent float64
}

func (e *ExpectContentLength) Name() string { return "ExpectContentLength" }

func (e *ExpectContentLength) ValidateHTTP(resp *http.Response, body string) domain.CheckResult {
	header := resp.Header.Get("Content-Length")
	length, err := strconv.Atoi(header)
	if err != nil {
		length = len(body)
	}
	if header == "" {
		header = "MISSING_HEADER"
	}
	tags := domain.Tags{
		e.Name() + ".ContentLength":       strconv.Itoa(length),
		e.Name() + ".ContentLengthHeader": header,
	}
	if e.meets(length) {
		return domain.NewResult(domain.Success, "", tags)
	}
	return domain.NewResult(domain.Failure, fmt.Sprintf(
		"%s: Content length expectation failed. Received length: %d, expected: %d +- %s%%",
		e.Name(), length, e.Expected, strconv.FormatFloat(e.ThresholdPercent, 'f', -1, 64)), tags)
}

func (e *ExpectContentLength) meets(length int) bool {
	if e.ThresholdPercent <= 0 {
		return length == e.Expected
	}
	lo := max(0, 100-e.ThresholdPercent) / 100 * float64(e.Expected)
	hi := (100 + e.ThresholdPercent) / 100 * float64(e.Expected)
	return lo <= float64(length) && float64(length) <= hi
}

type ExpectExitCode struct {
	Codes []int
}

func (e *ExpectExitCode) Name() string { return "ExpectExitCode" }

func (e *ExpectExitCode) ValidateExit(exitCode *int, _, _ string) domain.CheckResult {
	code := "NULL"
	if exitCode != nil {
		code = strconv.Itoa(*exitCode)
	}
	tags := domain.Tags{e.Name() + ".ExitCode": code}
	if len(e.Codes) == 0 {
		return domain.NewResult(domain.BadConfiguration, e.Name()+": exit_codes is empty", tags)
	}
	if exitCode != nil && slices.Contains(e.Codes, *exitCode) {
		return domain.NewResult(domain.Success, "", tags)
	}
	return domain.NewResult(domain.Failure, fmt.Sprintf("%s: Not expected exit code: %s", e.Name(), code), tags)
}
