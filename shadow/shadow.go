// Package shadow compares two registries' answers for the same evaluation
// without affecting production behavior. A baseline registry supplies the
// returned value; a candidate registry is evaluated only so its decision
// can be compared, letting operators verify a configuration change before
// promoting it.
package shadow

import (
	"log/slog"
	"reflect"

	"github.com/gatekeep/gatekeep"
)

// Mismatch carries both decision traces when baseline and candidate
// diverge in value or decision kind.
type Mismatch struct {
	Feature           gatekeep.Feature
	BaselineValue     any
	CandidateValue    any
	BaselineDecision  gatekeep.Decision
	CandidateDecision gatekeep.Decision
}

// Comparator evaluates against a baseline and a candidate registry.
// Candidate failures of any kind, panics included, never reach the
// caller: the baseline result is returned regardless.
type Comparator struct {
	baseline   *gatekeep.Registry
	candidate  *gatekeep.Registry
	onMismatch func(Mismatch)
	log        *slog.Logger
}

// Option configures a Comparator.
type Option func(*Comparator)

// WithMismatchHandler installs the callback invoked on divergence. The
// callback runs synchronously on the evaluating goroutine.
func WithMismatchHandler(fn func(Mismatch)) Option {
	return func(c *Comparator) {
		c.onMismatch = fn
	}
}

// WithLogger sets the logger for swallowed candidate failures.
func WithLogger(log *slog.Logger) Option {
	return func(c *Comparator) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a comparator over a baseline and a candidate registry.
func New(baseline, candidate *gatekeep.Registry, opts ...Option) *Comparator {
	c := &Comparator{
		baseline:  baseline,
		candidate: candidate,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Baseline returns the registry that supplies returned values.
func (c *Comparator) Baseline() *gatekeep.Registry {
	return c.baseline
}

// Evaluate resolves f against the baseline and returns its value. The
// candidate is evaluated for comparison only; when the two runs disagree
// in value or decision kind the mismatch handler receives both traces.
func Evaluate[T any](c *Comparator, f gatekeep.Feature, ctx gatekeep.Context) (T, error) {
	value, decision, err := gatekeep.Explain[T](c.baseline, f, ctx)
	if err != nil {
		return value, err
	}

	c.compare(f, ctx, value, decision)
	return value, nil
}

func (c *Comparator) compare(f gatekeep.Feature, ctx gatekeep.Context, baselineValue any, baselineDecision gatekeep.Decision) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("shadow candidate evaluation panicked",
				slog.String("feature", f.Key()),
				slog.Any("panic", r),
			)
		}
	}()

	candidateValue, candidateDecision, err := gatekeep.Explain[any](c.candidate, f, ctx)
	if err != nil {
		c.log.Warn("shadow candidate evaluation failed",
			slog.String("feature", f.Key()),
			slog.String("error", err.Error()),
		)
		return
	}

	if candidateDecision.Kind == baselineDecision.Kind && equalValues(baselineValue, candidateValue) {
		return
	}

	if c.onMismatch != nil {
		c.onMismatch(Mismatch{
			Feature:           f,
			BaselineValue:     baselineValue,
			CandidateValue:    candidateValue,
			BaselineDecision:  baselineDecision,
			CandidateDecision: candidateDecision,
		})
	}
}

// equalValues uses deep equality because flag payloads may be
// uncomparable types such as raw JSON byte slices.
func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
