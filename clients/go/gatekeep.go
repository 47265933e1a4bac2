// Package gatekeep provides client interfaces and domain types for the
// gatekeepd feature flag service.
//
// Use the sub-package to create a transport-specific client:
//
//	import gatekeephttp "github.com/gatekeep/gatekeep/clients/go/http"
package gatekeep

import (
	"context"
	"encoding/json"
)

// Evaluator resolves flag values for a given evaluation context.
type Evaluator interface {
	Evaluate(ctx context.Context, namespace, property string, evalCtx EvaluationContext) (Value, error)
	EvaluateBatch(ctx context.Context, namespace string, reqs []EvaluateRequest) ([]EvaluateResult, error)
	Explain(ctx context.Context, namespace, property string, evalCtx EvaluationContext) (ExplainResult, error)
}

// ConfigManager covers the configuration lifecycle of a namespace.
type ConfigManager interface {
	LoadSnapshot(ctx context.Context, namespace string, snapshot json.RawMessage) (int, error)
	ApplyPatch(ctx context.Context, namespace string, patch json.RawMessage) (int, error)
	ExportSnapshot(ctx context.Context, namespace string) (json.RawMessage, error)
	Rollback(ctx context.Context, namespace string, steps int) (bool, error)
	DisableAll(ctx context.Context, namespace string) error
	EnableAll(ctx context.Context, namespace string) error
}

// EvaluationContext carries the runtime facts an evaluation is resolved
// against.
type EvaluationContext struct {
	Locale   string            `json:"locale,omitempty"`
	Platform string            `json:"platform,omitempty"`
	Version  string            `json:"version,omitempty"`
	StableID string            `json:"stable_id,omitempty"`
	Axes     map[string]string `json:"axes,omitempty"`
}

// Value is the tagged flag payload returned by the server:
// "bool" | "string" | "int" | "double" | "enum" | "data".
type Value struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Bool unwraps a bool payload.
func (v Value) Bool() (bool, bool) {
	if v.Type != "bool" {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(v.Value, &b); err != nil {
		return false, false
	}
	return b, true
}

// Int unwraps an int payload.
func (v Value) Int() (int64, bool) {
	if v.Type != "int" {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(v.Value, &n); err != nil {
		return 0, false
	}
	return n, true
}

// String unwraps a string or enum payload.
func (v Value) String() (string, bool) {
	if v.Type != "string" && v.Type != "enum" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v.Value, &s); err != nil {
		return "", false
	}
	return s, true
}

// Double unwraps a double payload.
func (v Value) Double() (float64, bool) {
	if v.Type != "double" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v.Value, &f); err != nil {
		return 0, false
	}
	return f, true
}

// EvaluateRequest is a single flag evaluation request.
type EvaluateRequest struct {
	Property string            `json:"property"`
	Context  EvaluationContext `json:"context"`
}

// EvaluateResult is the outcome of a single flag evaluation.
type EvaluateResult struct {
	Property string `json:"property"`
	Value    Value  `json:"value"`
	Decision string `json:"decision"`
}

// Decision is the wire form of a decision trace.
type Decision struct {
	Kind                  string `json:"kind"`
	FeatureKey            string `json:"feature_key"`
	RuleIndex             int    `json:"rule_index"`
	Specificity           int    `json:"specificity"`
	Bucket                int    `json:"bucket"`
	RuleNote              string `json:"rule_note,omitempty"`
	SkippedByRolloutIndex int    `json:"skipped_by_rollout_index"`
}

// ExplainResult is an evaluation outcome with its full decision trace.
type ExplainResult struct {
	Property string   `json:"property"`
	Value    Value    `json:"value"`
	Decision Decision `json:"decision"`
}
