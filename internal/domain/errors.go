package domain

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/multierr"
)

// ConfigError reports a missing or invalid configuration field. It is never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration error: %s is required", e.Field)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Kind() string { return "ConfigurationError" }

func MissingField(field string) error { return &ConfigError{Field: field} }

type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("timed out after %s", e.After)
	}
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

func (e *TimeoutError) Kind() string { return "TimeoutError" }

// TransientError marks a network level failure worth another attempt.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }
func (e *TransientError) Kind() string  { return "TransientProbeError" }

// ShortCircuitError carries a failed aggregation up to the probe boundary
// so the parent sees one failed child instead of an unexpected error.
type ShortCircuitError struct {
	Result CheckResult
}

func (e *ShortCircuitError) Error() string { return e.Result.Description }
func (e *ShortCircuitError) Kind() string  { return "AggregationShortCircuit" }

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// FromError converts err into a Failure result. It is the only place where
// probe errors become results.
func FromError(caller string, err error) CheckResult {
	if err == nil {
		return NewResult(Failure, caller+": unknown error", nil)
	}

	var sc *ShortCircuitError
	if errors.As(err, &sc) {
		return sc.Result
	}

	err = firstCause(err)

	return NewResult(Failure, err.Error(), Tags{
		caller + ".exception": ErrorKind(err),
	})
}

func firstCause(err error) error {
	if errs := multierr.Errors(err); len(errs) > 1 {
		return errs[0]
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		if errs := j.Unwrap(); len(errs) > 0 && errs[0] != nil {
			return errs[0]
		}
	}
	return err
}

// ErrorKind names the kind of err: its Kind() when it has one, else its Go type name.
func ErrorKind(err error) string {
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}
