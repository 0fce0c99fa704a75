package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Checker is the probe configuration loaded from CHECKER_CONFIG.
type Checker struct {
	Interval    time.Duration `yaml:"interval"`
	Schedule    string        `yaml:"schedule"`
	ScheduleUTC bool          `yaml:"schedule_utc"`
	// Concurrency bounds how many probes of one step run at the same time.
	Concurrency int `yaml:"concurrency"`
	// RemoteConfigURL, when set, names a YAML document that replaces this one.
	RemoteConfigURL string `yaml:"remote_config_url"`

	AppStart    *Step    `yaml:"app_start"`
	Periodic    []Step   `yaml:"periodic"`
	AppShutdown *Step    `yaml:"app_shutdown"`
	Reports     []Report `yaml:"reports"`
}

type Step struct {
	Groups []Group `yaml:"groups"`
	Before *Step   `yaml:"before"`
	After  *Step   `yaml:"after"`
	// Zero durations inherit from the enclosing step.
	MinDuration      time.Duration `yaml:"min_duration"`
	MaxDuration      time.Duration `yaml:"max_duration"`
	FinishBeforeNext *bool         `yaml:"finish_before_next"`
	SendReport       *bool         `yaml:"send_report"`
}

// FinishesBeforeNext reports whether the step must complete before the next
// one starts.
func (s *Step) FinishesBeforeNext() bool {
	return s.FinishBeforeNext != nil && *s.FinishBeforeNext
}

type Group struct {
	Name        string         `yaml:"name"`
	Order       int            `yaml:"order"`
	MinInterval *time.Duration `yaml:"min_interval"`
	Probes      []ProbeDef     `yaml:"probes"`
}

const (
	defaultInterval      = 60 * time.Second
	defaultReportTimeout = 300 * time.Second
)

// Load reads and parses the checker file at path.
func Load(path string) (*Checker, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checker config: %w", err)
	}
	return Parse(b)
}

// Parse decodes a checker document, applies defaults and validates it.
func Parse(b []byte) (*Checker, error) {
	c := &Checker{Interval: defaultInterval}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("decode checker config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FetchRemote downloads and parses the checker document at url.
func FetchRemote(ctx context.Context, client *http.Client, url string) (*Checker, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("remote config: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote config: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("remote config: %s returned %s", url, resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("remote config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	// a remote document cannot redirect again
	c.RemoteConfigURL = ""
	return c, nil
}

func (c *Checker) applyDefaults() {
	if c.Interval < 0 {
		c.Interval = 0
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	for i := range c.Periodic {
		defaultFinish(&c.Periodic[i], true)
	}
	defaultFinish(c.AppStart, false)
	defaultFinish(c.AppShutdown, false)

	for i := range c.Reports {
		r := &c.Reports[i]
		if len(r.Groups) == 0 {
			r.Groups = []string{"*"}
		}
		if r.Timeout <= 0 {
			r.Timeout = defaultReportTimeout
		}
	}
}

func defaultFinish(s *Step, def bool) {
	if s == nil {
		return
	}
	if s.FinishBeforeNext == nil {
		v := def
		s.FinishBeforeNext = &v
	}
	defaultFinish(s.Before, false)
	defaultFinish(s.After, false)
}
