package domain

import (
	"fmt"
	"sort"
	"strings"
)

type Outcome int

const (
	Success Outcome = iota
	Failure
	NonConclusive
	BadConfiguration
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "Success"
	case Failure:
		return "Failure"
	case NonConclusive:
		return "NonConclusive"
	case BadConfiguration:
		return "BadConfiguration"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "success":
		*o = Success
	case "failure":
		*o = Failure
	case "nonconclusive":
		*o = NonConclusive
	case "badconfiguration":
		*o = BadConfiguration
	default:
		return fmt.Errorf("unknown outcome %q", string(b))
	}
	return nil
}

// Tags is the tag map carried by a CheckResult. Keys are namespaced by the
// producer type name, e.g. "HTTPProbe.RequestDuration".
type Tags map[string]string

// Add sets k only when it is not present yet.
func (t Tags) Add(k, v string) {
	if _, ok := t[k]; !ok {
		t[k] = v
	}
}

// AddAll adds every entry of other that is not already present.
func (t Tags) AddAll(other Tags) {
	for k, v := range other {
		t.Add(k, v)
	}
}

func (t Tags) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Prefixed returns a copy with every key prefixed by "<prefix>.".
func (t Tags) Prefixed(prefix string) Tags {
	out := make(Tags, len(t))
	for k, v := range t {
		out[prefix+"."+k] = v
	}
	return out
}

func (t Tags) Clone() Tags {
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

type CheckResult struct {
	Outcome     Outcome `json:"outcome"`
	Description string  `json:"description,omitempty"`
	Tags        Tags    `json:"tags"`
}

func NewResult(o Outcome, description string, tags Tags) CheckResult {
	if tags == nil {
		tags = Tags{}
	}
	return CheckResult{Outcome: o, Description: description, Tags: tags}
}

func (r CheckResult) Succeeded() bool { return r.Outcome == Success }
