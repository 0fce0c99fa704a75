package probe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeagent/internal/config"
	"github.com/hamed0406/uptimeagent/internal/domain"
	"github.com/hamed0406/uptimeagent/internal/retry"
	"github.com/hamed0406/uptimeagent/internal/validation"
)

// ExecProbe runs an external command, optionally followed by a cleanup
// command, and validates the exit code and output.
type ExecProbe struct {
	base
	params      config.ExecParams
	validations []validation.ExitValidator
	logger      *zap.Logger
}

func newExecProbe(def config.ProbeDef, group *config.Group, deps Deps) (Probe, error) {
	if def.Exec == nil || def.Exec.Command == "" {
		return nil, domain.MissingField("command")
	}
	vs, err := validation.Exit(def.Validations)
	if err != nil {
		return nil, err
	}
	p := &ExecProbe{params: *def.Exec, validations: vs, logger: deps.Logger}
	p.init(def, group)
	return p, nil
}

func (p *ExecProbe) Run(ctx context.Context) domain.CheckResult {
	p.markRun(time.Now())
	res, err := retry.Run(ctx, p.check, retryOptions(p.params.Retry, p.params.Timeout, "command "+p.params.Command))
	if err != nil {
		return domain.FromError("ExecProbe", err)
	}
	return res
}

type process struct {
	command       string
	args          []string
	env           map[string]string
	waitForExit   bool
	waitTimeout   time.Duration
	minWait       time.Duration
	killIfRunning bool
	capture       [2]bool
}

type processResult struct {
	exitCode       *int
	stdout, stderr string
	duration       time.Duration
}

func (p *ExecProbe) check(ctx context.Context) (domain.CheckResult, error) {
	capture := [2]bool{p.params.CaptureStdout, p.params.CaptureStderr}
	primary, err := p.runProcess(ctx, process{
		command:       p.params.Command,
		args:          p.params.Args,
		env:           p.params.Env,
		waitForExit:   p.params.WaitForExit,
		waitTimeout:   p.params.WaitTimeout,
		minWait:       p.params.MinWait,
		killIfRunning: p.params.KillIfRunning,
		capture:       capture,
	})
	if err != nil {
		return domain.CheckResult{}, err
	}

	command := commandLine(p.params.Command, p.params.Args)
	tags := domain.Tags{
		"Command":                    command,
		"CommandDuration":            primary.duration.String(),
		"CommandDuration." + command: primary.duration.String(),
		"ExitCode":                   exitCodeText(primary.exitCode),
		"ExitCode." + command:        exitCodeText(primary.exitCode),
	}

	total := primary.duration
	if p.params.CleanupCommand != "" {
		args := append(append([]string(nil), p.params.CleanupArgs...), "exitCode="+exitCodeText(primary.exitCode))
		cleanup, err := p.runProcess(ctx, process{
			command:       p.params.CleanupCommand,
			args:          args,
			env:           p.params.CleanupEnv,
			waitForExit:   p.params.CleanupWaitForExit,
			waitTimeout:   p.params.CleanupWaitTimeout,
			minWait:       p.params.CleanupMinWait,
			killIfRunning: p.params.CleanupKillIfRunning,
			capture:       capture,
		})
		if err != nil {
			return domain.CheckResult{}, fmt.Errorf("cleanup: %w", err)
		}
		cleanupCommand := commandLine(p.params.CleanupCommand, p.params.CleanupArgs)
		tags["CleanUpCommand"] = cleanupCommand
		tags["CleanUpDuration"] = cleanup.duration.String()
		tags["CleanUpDuration."+cleanupCommand] = cleanup.duration.String()
		tags["CleanUpExitCode"] = exitCodeText(cleanup.exitCode)
		tags["CleanUpExitCode."+cleanupCommand] = exitCodeText(cleanup.exitCode)
		total += cleanup.duration
	}
	tags["TotalDuration"] = total.String()
	tags["TotalDuration."+p.params.Command] = total.String()
	tags = tags.Prefixed("ExecProbe")

	if len(p.validations) == 0 {
		outcome := domain.Failure
		if primary.exitCode != nil && *primary.exitCode == 0 {
			outcome = domain.Success
		}
		return shortCircuit(domain.NewResult(outcome, "Exit code: "+exitCodeText(primary.exitCode), tags))
	}

	results := make([]domain.NamedResult, 0, len(p.validations))
	for _, v := range p.validations {
		results = append(results, domain.NamedResult{Name: v.Name(), Result: v.ValidateExit(primary.exitCode, primary.stdout, primary.stderr)})
	}
	withTags(results, tags)

	return shortCircuit(domain.Aggregate(p.name, len(p.validations), p.params.SuccessThreshold, results, nil))
}

// runProcess starts pr and applies its wait policy. A process that is still
// running when the policy is done keeps running and reports a nil exit code.
func (p *ExecProbe) runProcess(ctx context.Context, pr process) (processResult, error) {
	cmd := exec.Command(pr.command, pr.args...)
	if len(pr.env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range pr.env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	var stdout, stderr syncBuffer
	if pr.capture[0] {
		cmd.Stdout = &stdout
	}
	if pr.capture[1] {
		cmd.Stderr = &stderr
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return processResult{}, fmt.Errorf("start %s: %w", pr.command, err)
	}
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	kill := func() {
		_ = cmd.Process.Kill()
		<-exited
	}

	if pr.waitForExit {
		var timeout <-chan time.Time
		if pr.waitTimeout > 0 {
			t := time.NewTimer(pr.waitTimeout)
			defer t.Stop()
			timeout = t.C
		}
		select {
		case <-exited:
		case <-timeout:
		case <-ctx.Done():
			kill()
			return processResult{}, ctx.Err()
		}
	}

	if remaining := pr.minWait - time.Since(start); remaining > 0 {
		t := time.NewTimer(remaining)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			kill()
			return processResult{}, ctx.Err()
		}
	}

	done := false
	select {
	case <-exited:
		done = true
	default:
		if pr.killIfRunning {
			p.logger.Info("exec_kill_running", zap.String("command", pr.command), zap.Int("pid", cmd.Process.Pid))
			kill()
			done = true
		}
	}

	res := processResult{duration: time.Since(start)}
	if done {
		code := cmd.ProcessState.ExitCode()
		res.exitCode = &code
	}
	res.stdout = stdout.String()
	res.stderr = stderr.String()
	return res, nil
}

func commandLine(command string, args []string) string {
	return strings.TrimSpace(command + " " + strings.Join(args, " "))
}

func exitCodeText(code *int) string {
	if code == nil {
		return "RUNNING"
	}
	return strconv.Itoa(*code)
}

// syncBuffer is written by the process while the probe may already read it.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}
