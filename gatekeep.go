// Package gatekeep is a deterministic feature-flag evaluation engine.
//
// A host loads an immutable [Configuration] (flag identifier to
// [FlagDefinition]) into a per-namespace [Registry], then resolves
// [Feature] references against a per-call [Context]. Rules are matched in
// descending specificity order, gated by a deterministic SHA-256 bucket of
// the context's stable id, and fall back to the flag's default. Every
// evaluation is a pure function of the definition and context, so results
// are reproducible across processes and machines.
//
// Evaluations are lock-free with respect to configuration loads: the
// registry swaps whole snapshots atomically, and an in-flight evaluation
// keeps the snapshot it acquired.
package gatekeep

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrFeatureNotFound reports an evaluation of a feature absent from
	// the registry's current snapshot. This is a registration bug in the
	// host, not a data condition, and is distinct from "no rule matched".
	ErrFeatureNotFound = errors.New("feature not found")

	// ErrTypeMismatch reports a stored flag value that does not have the
	// type the call site asked for.
	ErrTypeMismatch = errors.New("flag value type mismatch")
)

// Evaluate resolves a feature to its typed value. It fails only when the
// feature is not registered or its stored value is not a T.
func Evaluate[T any](r *Registry, f Feature, ctx Context) (T, error) {
	value, _, err := Explain[T](r, f, ctx)
	return value, err
}

// Explain resolves a feature and additionally returns the full decision
// trace for observability.
func Explain[T any](r *Registry, f Feature, ctx Context) (T, Decision, error) {
	var zero T
	start := time.Now()

	key := f.Key()
	def, ok := r.Current().Flag(key)
	if !ok {
		return zero, Decision{}, fmt.Errorf("%w: %q in namespace %q", ErrFeatureNotFound, key, r.namespace)
	}

	var value any
	var decision Decision
	if r.Disabled() {
		value = def.Default
		decision = Decision{
			Kind:                  DecisionRegistryDisabled,
			FeatureKey:            key,
			RuleIndex:             -1,
			Specificity:           -1,
			Bucket:                -1,
			SkippedByRolloutIndex: -1,
		}
	} else {
		value, decision = evaluateDefinition(key, def, ctx)
	}

	r.hook.Evaluation(EvaluationEvent{
		Namespace:          r.namespace,
		FeatureKey:         key,
		Kind:               decision.Kind,
		Duration:           time.Since(start),
		MatchedSpecificity: decision.Specificity,
	})

	if value == nil {
		return zero, decision, nil
	}
	typed, ok := value.(T)
	if !ok {
		return zero, decision, fmt.Errorf("%w: %q holds %T", ErrTypeMismatch, key, value)
	}
	return typed, decision, nil
}
