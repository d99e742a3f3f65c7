// Package triggers reconciles the scheduled and event rules that invoke a
// function in the background.
package triggers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/picklr-io/shipyard/internal/engine"
	"github.com/robfig/cron/v3"
)

// Trigger kinds.
const (
	KindSchedule = "schedule"
	KindEvent    = "event"
)

// Declaration is one background method of a function.
type Declaration struct {
	// Path is the method path invoked by the rule, e.g. "jobs/cleanup".
	Path string
	Kind string
	// RateMs is the schedule interval in milliseconds.
	RateMs int64
	// Cron is a standard five-field cron expression.
	Cron string
	// EventPattern is a JSON event pattern.
	EventPattern string
}

var units = []struct {
	name string
	d    time.Duration
}{
	{"day", 24 * time.Hour},
	{"hour", time.Hour},
	{"minute", time.Minute},
}

func rateParts(ms int64) (int64, string, error) {
	if ms <= 0 {
		return 0, "", fmt.Errorf("schedule rate must be positive, got %dms", ms)
	}
	for _, u := range units {
		if unit := u.d.Milliseconds(); ms%unit == 0 {
			return ms / unit, u.name, nil
		}
	}
	return 0, "", fmt.Errorf("schedule rate %dms is not a whole number of minutes, hours or days", ms)
}

func plural(n int64, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

// RateExpression converts a millisecond interval to a rate expression such
// as "rate(2 hours)". The largest unit dividing the interval exactly wins.
func RateExpression(ms int64) (string, error) {
	n, unit, err := rateParts(ms)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("rate(%d %s)", n, plural(n, unit)), nil
}

// DescribeRate renders an interval for humans, e.g. "every 1 minute".
func DescribeRate(ms int64) (string, error) {
	n, unit, err := rateParts(ms)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("every %d %s", n, plural(n, unit)), nil
}

// CronExpression validates a five-field cron expression and converts it to
// the six-field provider form, e.g. "0 12 * * MON-FRI" becomes
// "cron(0 12 ? * MON-FRI *)". Day-of-week must use names because the
// provider numbers days from 1 instead of 0.
func CronExpression(spec string) (string, error) {
	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return "", fmt.Errorf("cron expression %q must have exactly five fields", spec)
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return "", fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]
	if strings.ContainsAny(dow, "0123456789") {
		return "", fmt.Errorf("cron expression %q: use day names (MON-FRI) for the day of week", spec)
	}
	switch {
	case dow == "*" || dow == "?":
		dow = "?"
	case dom == "*" || dom == "?":
		dom = "?"
	default:
		return "", fmt.Errorf("cron expression %q cannot restrict both day of month and day of week", spec)
	}
	return fmt.Sprintf("cron(%s %s %s %s %s *)", minute, hour, dom, month, dow), nil
}

// NormalizePattern re-encodes a JSON event pattern with sorted keys so two
// equivalent patterns compare equal.
func NormalizePattern(pattern string) (string, error) {
	var v map[string]any
	if err := json.Unmarshal([]byte(pattern), &v); err != nil {
		return "", fmt.Errorf("invalid event pattern: %w", err)
	}
	if len(v) == 0 {
		return "", fmt.Errorf("event pattern must not be empty")
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode event pattern: %w", err)
	}
	return string(out), nil
}

// Expression returns the schedule expression or the normalized event
// pattern of d. Exactly one of the two is non-empty.
func (d Declaration) Expression() (schedule, pattern string, err error) {
	switch d.Kind {
	case KindSchedule, "":
		switch {
		case d.Cron != "" && d.RateMs != 0:
			return "", "", fmt.Errorf("trigger %q: set either a rate or a cron expression, not both", d.Path)
		case d.Cron != "":
			schedule, err = CronExpression(d.Cron)
		default:
			schedule, err = RateExpression(d.RateMs)
		}
	case KindEvent:
		pattern, err = NormalizePattern(d.EventPattern)
	default:
		err = fmt.Errorf("unknown trigger kind %q", d.Kind)
	}
	if err != nil {
		return "", "", fmt.Errorf("trigger %q: %w", d.Path, err)
	}
	return schedule, pattern, nil
}

// Validate checks every declaration without touching the cloud.
func Validate(resource string, decls []Declaration) error {
	seen := make(map[string]bool)
	for _, d := range decls {
		if strings.TrimSpace(d.Path) == "" {
			return engine.ConfigError(resource, "trigger path is required")
		}
		if seen[d.Path] {
			return engine.ConfigError(resource, "trigger %q is declared twice", d.Path)
		}
		seen[d.Path] = true
		if _, _, err := d.Expression(); err != nil {
			return engine.ConfigError(resource, "%v", err)
		}
	}
	return nil
}

// ValidateRuleNames rejects declarations of function whose paths map to the
// same rule name, since one rule would silently replace the other.
func ValidateRuleNames(resource, function string, decls []Declaration) error {
	paths := make(map[string]string, len(decls))
	for _, d := range decls {
		name := RuleName(function, d.Path)
		if other, ok := paths[name]; ok && other != d.Path {
			return engine.ConfigError(resource, "triggers %q and %q both map to rule %s", other, d.Path, name)
		}
		paths[name] = d.Path
	}
	return nil
}
