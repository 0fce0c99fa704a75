package validation

import (
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hamed0406/uptimeagent/internal/domain"
)

func TestExpectStatusCodes(t *testing.T) {
	v := &ExpectStatusCodes{Codes: []int{200}}

	res := v.ValidateHTTP(&http.Response{StatusCode: 503}, "")
	require.Equal(t, domain.Failure, res.Outcome)
	require.Equal(t, "ExpectStatusCodes: Not expected status code: 503 from response.", res.Description)
	require.Equal(t, "503", res.Tags["ExpectStatusCodes.StatusCode"])

	res = v.ValidateHTTP(&http.Response{StatusCode: 200}, "")
	require.Equal(t, domain.Success, res.Outcome)

	empty := &ExpectStatusCodes{}
	require.Equal(t, domain.BadConfiguration, empty.ValidateHTTP(&http.Response{StatusCode: 200}, "").Outcome)
}

func TestMustContain_CaseSensitivity(t *testing.T) {
	sensitive := &MustContain{Text: "Hello", CaseSensitive: true}
	insensitive := &MustContain{Text: "Hello"}

	require.Equal(t, domain.Failure, sensitive.ValidateText("say hello").Outcome)
	require.Equal(t, domain.Success, sensitive.ValidateText("say Hello").Outcome)
	require.Equal(t, domain.Success, insensitive.ValidateText("say hello").Outcome)
}

func TestMustNotContain(t *testing.T) {
	v := &MustContain{Text: "error", Negate: true}
	require.Equal(t, "MustNotContain", v.Name())

	res := v.ValidateHTTP(&http.Response{StatusCode: 200}, "internal ERROR")
	require.Equal(t, domain.Failure, res.Outcome)
	require.Contains(t, res.Description, "MustNotContain: Found error")

	require.Equal(t, domain.Success, v.ValidateText("all good").Outcome)
}

func TestMustContain_EmptyTextIsBadConfiguration(t *testing.T) {
	require.Equal(t, domain.BadConfiguration, (&MustContain{}).ValidateText("x").Outcome)
	require.Equal(t, domain.BadConfiguration, (&MustContain{Text: " "}).ValidateIP(HostEntry{}).Outcome)
}

func TestMustContain_HostEntry(t *testing.T) {
	entry := HostEntry{
		HostName:  "edge.example.net",
		Addresses: []net.IP{net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2")},
		Aliases:   []string{"www.example.com"},
	}

	require.Equal(t, domain.Success, (&MustContain{Text: "10.0.0.2"}).ValidateIP(entry).Outcome)
	require.Equal(t, domain.Success, (&MustContain{Text: "EDGE.example.net"}).ValidateIP(entry).Outcome)
	require.Equal(t, domain.Failure, (&MustContain{Text: "EDGE.example.net", CaseSensitive: true}).ValidateIP(entry).Outcome)
	require.Equal(t, domain.Success, (&MustContain{Text: "www.example.com"}).ValidateIP(entry).Outcome)
	require.Equal(t, domain.Failure, (&MustContain{Text: "10.0.0.9"}).ValidateIP(entry).Outcome)
	require.Equal(t, domain.Failure, (&MustContain{Text: "10.0.0.1", Negate: true}).ValidateIP(entry).Outcome)
}

func TestExpectContentLength(t *testing.T) {
	resp := func(header string) *http.Response {
		h := http.Header{}
		if header != "" {
			h.Set("Content-Length", header)
		}
		return &http.Response{StatusCode: 200, Header: h}
	}

	exact := &ExpectContentLength{Expected: 5}
	res := exact.ValidateHTTP(resp(""), "hello")
	require.Equal(t, domain.Success, res.Outcome)
	require.Equal(t, "MISSING_HEADER", res.Tags["ExpectContentLength.ContentLengthHeader"])

	res = exact.ValidateHTTP(resp("7"), "hello")
	require.Equal(t, domain.Failure, res.Outcome)
	require.Equal(t, "7", res.Tags["ExpectContentLength.ContentLength"])

	loose := &ExpectContentLength{Expected: 100, ThresholdPercent: 10}
	require.Equal(t, domain.Success, loose.ValidateHTTP(resp("109"), "").Outcome)
	require.Equal(t, domain.Failure, loose.ValidateHTTP(resp("111"), "").Outcome)
}

func TestExpectExitCode(t *testing.T) {
	v := &ExpectExitCode{Codes: []int{0, 3}}
	three, one := 3, 1

	require.Equal(t, domain.Success, v.ValidateExit(&three, "", "").Outcome)
	res := v.ValidateExit(&one, "", "")
	require.Equal(t, domain.Failure, res.Outcome)
	require.Equal(t, "1", res.Tags["ExpectExitCode.ExitCode"])

	res = v.ValidateExit(nil, "", "")
	require.Equal(t, domain.Failure, res.Outcome)
	require.Equal(t, "NULL", res.Tags["ExpectExitCode.ExitCode"])
}

func TestBuild_RejectsUnsupportedCapability(t *testing.T) {
	_, err := HTTP([]Def{{Kind: KindExpectExitCode, Params: Params{ExitCodes: []int{0}}}})
	require.True(t, domain.IsConfigError(err))

	vs, err := Text([]Def{{Kind: KindMustNotContain, Params: Params{Text: "x"}}})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	require.Equal(t, "MustNotContain", vs[0].Name())

	_, err = New(Def{Kind: "regex"})
	require.Error(t, err)
}

func TestBuild_UnknownKindReportedBeforeCapability(t *testing.T) {
	for _, build := range []func([]Def) error{
		func(d []Def) error { _, err := HTTP(d); return err },
		func(d []Def) error { _, err := Exit(d); return err },
	} {
		err := build([]Def{{Kind: "must_match", Params: Params{Text: "x"}}})
		require.True(t, domain.IsConfigError(err))
		require.ErrorContains(t, err, `unknown validation kind "must_match"`)
		require.NotContains(t, err.Error(), "cannot validate")
	}
	require.False(t, Known("must_match"))
	require.True(t, Known(KindExpectExitCode))
}
