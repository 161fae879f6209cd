package ratelimit

import (
	"context"
	"fmt"
)

// PolicySet maps scopes to policies. Scopes without an entry use Default.
type PolicySet struct {
	Default Policy
	Scopes  map[Scope]Policy
}

// For returns the policy for scope.
func (s PolicySet) For(scope Scope) Policy {
	if p, ok := s.Scopes[scope]; ok {
		return p
	}

	return s.Default
}

// Validate checks the default and every scoped policy.
func (s PolicySet) Validate() error {
	if err := s.Default.Validate(); err != nil {
		return fmt.Errorf("default policy: %w", err)
	}

	for scope, p := range s.Scopes {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%s policy: %w", scope, err)
		}
	}

	return nil
}

// LimitExceeded describes a rejected request.
type LimitExceeded struct {
	Scope    Scope
	Policy   Policy
	Decision Decision
}

// PolicyLimiter picks a policy per scope and checks it with a Checker.
type PolicyLimiter struct {
	checker  Checker
	policies PolicySet
}

// NewPolicyLimiter creates a new policy-based rate limiter.
func NewPolicyLimiter(checker Checker, policies PolicySet) (*PolicyLimiter, error) {
	if err := policies.Validate(); err != nil {
		return nil, err
	}

	return &PolicyLimiter{
		checker:  checker,
		policies: policies,
	}, nil
}

// Allow checks the scope's policy for clientKey. It returns the decision and,
// when rejected, details of the limit that was hit.
func (l *PolicyLimiter) Allow(ctx context.Context, clientKey string, scope Scope) (Decision, *LimitExceeded, error) {
	policy := l.policies.For(scope)

	return l.check(ctx, l.buildKey(clientKey, string(scope), policy), scope, policy)
}

// AllowCustom checks an endpoint-specific policy. route namespaces the counter
// so that it is not shared with the scope's default policy.
func (l *PolicyLimiter) AllowCustom(
	ctx context.Context, clientKey, route string, policy Policy,
) (Decision, *LimitExceeded, error) {
	return l.check(ctx, l.buildKey(clientKey, "custom:"+route, policy), Scope("custom"), policy)
}

func (l *PolicyLimiter) check(
	ctx context.Context, key string, scope Scope, policy Policy,
) (Decision, *LimitExceeded, error) {
	decision, err := l.checker.CheckAndConsume(ctx, key, policy)
	if err != nil {
		return Decision{}, nil, err
	}

	if !decision.Allowed {
		return decision, &LimitExceeded{Scope: scope, Policy: policy, Decision: decision}, nil
	}

	return decision, nil, nil
}

// buildKey combines client, namespace and window so that counters with
// different windows never share a record.
func (l *PolicyLimiter) buildKey(clientKey, namespace string, policy Policy) string {
	return fmt.Sprintf("%s:%s:%d", clientKey, namespace, policy.WindowSeconds)
}

// Policies returns the configured policy set.
func (l *PolicyLimiter) Policies() PolicySet {
	return l.policies
}
