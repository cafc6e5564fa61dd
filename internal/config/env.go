// Package config provides the flag/env/file layering helpers shared by
// cmd/signal-controller and cmd/vehicle-detector, grounded on the teacher's
// cmd/can-server/config.go (parse flags, track which were explicitly set,
// layer environment-variable overrides on top of unset flags, validate).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Explicit tracks which flag names were set explicitly on the command
// line (callers fill it by calling Visit on their own pflag.FlagSet), so
// env/file layers never override a
// value the operator typed.
type Explicit map[string]struct{}

// Has reports whether flagName was explicitly set on the command line.
func (e Explicit) Has(name string) bool { _, ok := e[name]; return ok }

func (e Explicit) has(name string) bool { return e.Has(name) }

// StringEnv sets *dst from the environment variable env unless flagName was
// explicitly set or the variable is unset/empty.
func StringEnv(set Explicit, flagName, env string, dst *string) {
	if set.has(flagName) {
		return
	}
	if v, ok := os.LookupEnv(env); ok {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
}

// IntEnv parses env as an integer and sets *dst, collecting the first
// parse error into errs.
func IntEnv(set Explicit, flagName, env string, dst *int, errs *FirstError) {
	if set.has(flagName) {
		return
	}
	v, ok := os.LookupEnv(env)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		errs.Set(fmt.Errorf("invalid %s: %w", env, err))
		return
	}
	*dst = n
}

// DurationEnv parses env with time.ParseDuration and sets *dst.
func DurationEnv(set Explicit, flagName, env string, dst *time.Duration, errs *FirstError) {
	if set.has(flagName) {
		return
	}
	v, ok := os.LookupEnv(env)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		errs.Set(fmt.Errorf("invalid %s: %w", env, err))
		return
	}
	*dst = d
}

// BoolEnv parses env loosely (1/true/yes/on, 0/false/no/off) and sets *dst.
func BoolEnv(set Explicit, flagName, env string, dst *bool) {
	if set.has(flagName) {
		return
	}
	v, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}

// FirstError accumulates only the first error it is given, matching the
// teacher's applyEnvOverrides firstErr idiom.
type FirstError struct{ err error }

func (f *FirstError) Set(err error) {
	if f.err == nil {
		f.err = err
	}
}
func (f *FirstError) Err() error { return f.err }
