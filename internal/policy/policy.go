// Package policy decides whether and when a stopped or failed container is
// restarted.
package policy

import (
	"fmt"
	"time"

	"lifeguard/internal/config"
)

// Policy is a container restart policy.
type Policy string

const (
	No            Policy = "no"
	Always        Policy = "always"
	OnFailure     Policy = "on-failure"
	UnlessStopped Policy = "unless-stopped"
)

// Parse converts a config string into a Policy.
func Parse(s string) (Policy, error) {
	switch p := Policy(s); p {
	case No, Always, OnFailure, UnlessStopped:
		return p, nil
	default:
		return "", fmt.Errorf("unknown restart policy %q", s)
	}
}

// Exit classifies the state a container is in when a restart is considered.
type Exit int

const (
	ExitFailed Exit = iota
	ExitStopped
	ExitOther
)

// ShouldRestart reports whether p permits a restart from exit:
//
//	policy          failed  stopped  other
//	no              false   false    false
//	always          true    true     true
//	on-failure      true    false    false
//	unless-stopped  true    false    true
func (p Policy) ShouldRestart(exit Exit) bool {
	switch p {
	case Always:
		return true
	case OnFailure:
		return exit == ExitFailed
	case UnlessStopped:
		return exit != ExitStopped
	default:
		return false
	}
}

// maxBackoffExponent caps the exponential backoff at Delay * 2^5.
const maxBackoffExponent = 5

// RestartConfig holds the restart policy and its backoff parameters.
type RestartConfig struct {
	Policy             Policy        `json:"policy"`
	MaxAttempts        int           `json:"max_restart_attempts"`
	Delay              time.Duration `json:"restart_delay"`
	ExponentialBackoff bool          `json:"exponential_backoff"`
	MaxDelay           time.Duration `json:"max_delay"`
	Window             time.Duration `json:"restart_window"`
}

// FromConfig builds a RestartConfig from the restart section of the config.
func FromConfig(c config.Restart) (RestartConfig, error) {
	p, err := Parse(c.Policy)
	if err != nil {
		return RestartConfig{}, err
	}
	rc := RestartConfig{
		Policy:      p,
		Delay:       c.Delay,
		MaxDelay:    c.MaxDelay,
		Window:      c.Window,
	}
	rc.MaxAttempts = config.DefaultMaxRestartAttempts
	if c.MaxAttempts != nil {
		rc.MaxAttempts = *c.MaxAttempts
	}
	if c.ExponentialBackoff != nil {
		rc.ExponentialBackoff = *c.ExponentialBackoff
	}
	return rc, nil
}

// Backoff returns the delay before the next restart given how many restarts
// have already happened: Delay * 2^min(count, 5) when exponential, else
// Delay, clamped to MaxDelay.
func (c RestartConfig) Backoff(count int) time.Duration {
	d := c.Delay
	if c.ExponentialBackoff {
		exp := count
		if exp < 0 {
			exp = 0
		}
		if exp > maxBackoffExponent {
			exp = maxBackoffExponent
		}
		d = c.Delay * time.Duration(1<<exp)
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// NextCount returns the restart count after a restart at now. Restarts within
// Window of the previous one accumulate; otherwise the count starts over at 1.
func (c RestartConfig) NextCount(count int, last, now time.Time) int {
	if !last.IsZero() && now.Sub(last) <= c.Window {
		return count + 1
	}
	return 1
}
