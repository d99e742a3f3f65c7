package triggers

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/engine"
)

// FunctionTagKey names the function a rule invokes. Rules are listed by
// name prefix, which can match the rules of another function whose name
// starts the same way; the tag tells them apart.
const FunctionTagKey = "shipyard:function"

// TargetID is the target identifier of the function on every rule.
const TargetID = "shipyard-function"

const eventsPrincipal = "events.amazonaws.com"

var unsafeRuleChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Function identifies the function the rules invoke.
type Function struct {
	Name string
	ARN  string
}

// RuleName derives the rule name of a trigger.
func RuleName(function, path string) string {
	return engine.DeriveName(function+"-"+unsafeRuleChars.ReplaceAllString(path, "-"), engine.RuleNameLimit)
}

// rulePrefix is the prefix shared by every rule of function, truncated or not.
func rulePrefix(function string) string {
	p := function + "-"
	if keep := engine.RuleNameLimit - 9; len(p) > keep {
		p = p[:keep]
	}
	return p
}

func statementID(rule string) string {
	return "allow_events_" + rule
}

type desiredRule struct {
	decl     Declaration
	schedule string
	pattern  string
}

// Registrar reconciles the rules of one function.
type Registrar struct {
	Rules     cloud.Rules
	Functions cloud.Functions
}

// Reconcile creates missing rules, corrects drifted ones and removes owned
// rules no longer declared. Declarations are validated before any call.
func (r *Registrar) Reconcile(ctx context.Context, run *engine.Run, fn Function, decls []Declaration) (engine.Outcome, error) {
	if err := Validate(fn.Name, decls); err != nil {
		return "", err
	}
	if err := ValidateRuleNames(fn.Name, fn.Name, decls); err != nil {
		return "", err
	}

	desired := make(map[string]desiredRule, len(decls))
	for _, d := range decls {
		schedule, pattern, _ := d.Expression()
		desired[RuleName(fn.Name, d.Path)] = desiredRule{decl: d, schedule: schedule, pattern: pattern}
	}

	prefix := rulePrefix(fn.Name)
	listing, err := r.Rules.ListRules(ctx, prefix)
	if err != nil {
		return "", engine.ProviderError("list trigger rules", err).WithResource(prefix)
	}
	if listing.Truncated {
		return "", engine.ListingOverflowError("ListRules", len(listing.Rules)).WithResource(prefix)
	}
	existing := make(map[string]cloud.RuleState, len(listing.Rules))
	for _, rule := range listing.Rules {
		existing[rule.Name] = rule
	}

	outcome := engine.Unchanged
	mark := func(o engine.Outcome) {
		if o == engine.Created || o == engine.Updated {
			outcome = engine.Updated
		}
	}

	names := make([]string, 0, len(desired))
	for name := range desired {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		want := desired[name]
		o, err := r.reconcileRule(ctx, run, fn, name, want, existing)
		if err != nil {
			return "", err
		}
		mark(o)
	}

	for _, rule := range listing.Rules {
		if _, ok := desired[rule.Name]; ok {
			continue
		}
		if rule.Tags[FunctionTagKey] != fn.Name || !run.Ownership.Owns(rule.Tags) {
			continue
		}
		if err := r.deleteRule(ctx, run, fn, rule.Name); err != nil {
			return "", err
		}
		mark(engine.Updated)
	}

	return outcome, nil
}

func (r *Registrar) reconcileRule(ctx context.Context, run *engine.Run, fn Function, name string, want desiredRule, existing map[string]cloud.RuleState) (engine.Outcome, error) {
	spec := cloud.RuleSpec{
		Name:               name,
		ScheduleExpression: want.schedule,
		EventPattern:       want.pattern,
		Description:        describe(want),
		Tags:               r.tags(run, fn),
	}

	current, ok := existing[name]
	if !ok {
		arn, err := r.Rules.PutRule(ctx, spec)
		if err != nil {
			return "", engine.ProviderError("create trigger rule", err).WithResource(name)
		}
		if err := r.Rules.PutTarget(ctx, name, TargetID, fn.ARN); err != nil {
			return "", engine.ProviderError("set trigger rule target", err).WithResource(name)
		}
		if err := r.Functions.AddPermission(ctx, fn.Name, permission(name, arn)); err != nil {
			return "", engine.ProviderError("allow trigger rule to invoke function", err).WithResource(name)
		}
		run.Log().Info("trigger rule created", "rule", name, "path", want.decl.Path)
		return engine.Created, nil
	}

	if err := run.Ownership.Check("trigger rule", current.ARN, current.Tags); err != nil {
		return "", err
	}
	if owner := current.Tags[FunctionTagKey]; owner != fn.Name {
		return "", &engine.EngineError{
			Class:    engine.ClassOwnership,
			Message:  fmt.Sprintf("refusing to modify trigger rule %s of function %q", name, owner),
			Resource: current.ARN,
		}
	}

	outcome := engine.Unchanged
	if current.ScheduleExpression != want.schedule || !samePattern(current.EventPattern, want.pattern) {
		if _, err := r.Rules.PutRule(ctx, spec); err != nil {
			return "", engine.ProviderError("update trigger rule", err).WithResource(name)
		}
		run.Log().Info("trigger rule updated", "rule", name, "path", want.decl.Path)
		outcome = engine.Updated
	}

	targets, err := r.Rules.ListTargets(ctx, name)
	if err != nil {
		return "", engine.ProviderError("list trigger rule targets", err).WithResource(name)
	}
	if targets[TargetID] != fn.ARN {
		if err := r.Rules.PutTarget(ctx, name, TargetID, fn.ARN); err != nil {
			return "", engine.ProviderError("set trigger rule target", err).WithResource(name)
		}
		run.Log().Info("trigger rule target restored", "rule", name)
		outcome = engine.Updated
	}

	granted, err := cloud.EnsurePermission(ctx, r.Functions, fn.Name, permission(name, current.ARN))
	if err != nil {
		return "", engine.ProviderError("allow trigger rule to invoke function", err).WithResource(name)
	}
	if granted {
		run.Log().Info("trigger rule permission restored", "rule", name)
		outcome = engine.Updated
	}
	return outcome, nil
}

func permission(rule, ruleARN string) cloud.Permission {
	return cloud.Permission{
		StatementID: statementID(rule),
		Action:      "lambda:InvokeFunction",
		Principal:   eventsPrincipal,
		SourceARN:   ruleARN,
	}
}

func (r *Registrar) deleteRule(ctx context.Context, run *engine.Run, fn Function, name string) error {
	if err := r.Rules.RemoveTargets(ctx, name, []string{TargetID}); err != nil && !cloud.IsNotFound(err) {
		return engine.ProviderError("remove trigger rule targets", err).WithResource(name)
	}
	if err := r.Functions.RemovePermission(ctx, fn.Name, statementID(name)); err != nil && !cloud.IsNotFound(err) {
		return engine.ProviderError("remove trigger rule permission", err).WithResource(name)
	}
	if err := r.Rules.DeleteRule(ctx, name); err != nil && !cloud.IsNotFound(err) {
		return engine.ProviderError("delete trigger rule", err).WithResource(name)
	}
	run.Log().Info("trigger rule deleted", "rule", name)
	return nil
}

func (r *Registrar) tags(run *engine.Run, fn Function) map[string]string {
	tags := run.Ownership.Tags()
	tags[FunctionTagKey] = fn.Name
	return tags
}

func describe(want desiredRule) string {
	if want.decl.Kind == KindEvent {
		return fmt.Sprintf("invokes %s on matching events", want.decl.Path)
	}
	if want.decl.Cron != "" {
		return fmt.Sprintf("invokes %s on %s", want.decl.Path, want.decl.Cron)
	}
	every, _ := DescribeRate(want.decl.RateMs)
	return fmt.Sprintf("invokes %s %s", want.decl.Path, every)
}

func samePattern(remote, want string) bool {
	if remote == want {
		return true
	}
	if remote == "" || want == "" {
		return false
	}
	normalized, err := NormalizePattern(remote)
	return err == nil && normalized == want
}
