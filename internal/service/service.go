// Package service owns the per-namespace registries behind the gatekeepd
// API. It is the seam between the wire boundary (validated JSON snapshots
// and contexts in, tagged values and decision traces out) and the core
// evaluation engine.
package service

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gatekeep/gatekeep"
	"github.com/gatekeep/gatekeep/wire"
)

// Service manages one registry per namespace, created lazily on first
// use. All namespaces share the same hook and history depth.
type Service struct {
	mu         sync.RWMutex
	registries map[string]*gatekeep.Registry

	historyDepth int
	hook         gatekeep.Hook
	log          *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithHook installs an observer on every namespace registry.
func WithHook(hook gatekeep.Hook) Option {
	return func(s *Service) {
		if hook != nil {
			s.hook = hook
		}
	}
}

// WithHistoryDepth sets the rollback history depth for every namespace.
func WithHistoryDepth(depth int) Option {
	return func(s *Service) {
		if depth >= 1 {
			s.historyDepth = depth
		}
	}
}

// New creates an empty service.
func New(opts ...Option) *Service {
	s := &Service{
		registries:   make(map[string]*gatekeep.Registry),
		historyDepth: gatekeep.DefaultHistoryDepth,
		hook:         gatekeep.NopHook{},
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the namespace's registry, creating it on first use.
func (s *Service) Registry(namespace string) *gatekeep.Registry {
	s.mu.RLock()
	r, ok := s.registries[namespace]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.registries[namespace]; ok {
		return r
	}
	r = gatekeep.NewRegistry(namespace,
		gatekeep.WithHistoryDepth(s.historyDepth),
		gatekeep.WithHook(s.hook),
	)
	s.registries[namespace] = r
	return r
}

// Namespaces returns the namespaces that have a registry.
func (s *Service) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.registries))
	for name := range s.registries {
		names = append(names, name)
	}
	return names
}

// LoadSnapshot validates and installs a snapshot document as the
// namespace's active configuration, returning the flag count.
func (s *Service) LoadSnapshot(namespace string, data []byte) (int, error) {
	cfg, err := wire.DecodeSnapshot(data)
	if err != nil {
		return 0, err
	}

	s.Registry(namespace).Load(cfg)
	s.log.Info("snapshot loaded",
		slog.String("namespace", namespace),
		slog.Int("flags", cfg.Len()),
		slog.String("version", cfg.Metadata().Version),
	)
	return cfg.Len(), nil
}

// ApplyPatch overlays a patch document onto the namespace's active
// configuration and installs the result as a new snapshot, returning the
// resulting flag count.
func (s *Service) ApplyPatch(namespace string, data []byte) (int, error) {
	patch, err := wire.DecodePatch(data)
	if err != nil {
		return 0, err
	}

	r := s.Registry(namespace)
	current := r.Current()
	meta := current.Metadata()
	meta.GeneratedAt = time.Now().UTC()
	meta.Source = "patch"

	next := current.Apply(patch, meta)
	r.Load(next)
	s.log.Info("patch applied",
		slog.String("namespace", namespace),
		slog.Int("added", len(patch.Flags)),
		slog.Int("removed", len(patch.RemoveKeys)),
		slog.Int("flags", next.Len()),
	)
	return next.Len(), nil
}

// ExportSnapshot encodes the namespace's active configuration.
func (s *Service) ExportSnapshot(namespace string) ([]byte, error) {
	return wire.EncodeSnapshot(s.Registry(namespace).Current())
}

// Rollback reverts the namespace the given number of snapshots. It
// reports false when the history is too shallow.
func (s *Service) Rollback(namespace string, steps int) bool {
	ok := s.Registry(namespace).Rollback(steps)
	s.log.Info("rollback",
		slog.String("namespace", namespace),
		slog.Int("steps", steps),
		slog.Bool("success", ok),
	)
	return ok
}

// DisableAll sets the namespace's kill switch.
func (s *Service) DisableAll(namespace string) {
	s.Registry(namespace).DisableAll()
	s.log.Warn("namespace disabled", slog.String("namespace", namespace))
}

// EnableAll clears the namespace's kill switch.
func (s *Service) EnableAll(namespace string) {
	s.Registry(namespace).EnableAll()
	s.log.Info("namespace enabled", slog.String("namespace", namespace))
}

// EvaluateRequest is one wire-level evaluation request.
type EvaluateRequest struct {
	Property string
	Context  wire.ContextJSON
}

// EvaluateResult is the wire-level outcome of one evaluation.
type EvaluateResult struct {
	Property string     `json:"property"`
	Value    wire.Value `json:"value"`
	Decision string     `json:"decision"`
}

// DecisionJSON is the wire form of a decision trace.
type DecisionJSON struct {
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
	Property string       `json:"property"`
	Value    wire.Value   `json:"value"`
	Decision DecisionJSON `json:"decision"`
}

// Evaluate resolves one property in the namespace.
func (s *Service) Evaluate(namespace string, req EvaluateRequest) (EvaluateResult, error) {
	explained, err := s.Explain(namespace, req)
	if err != nil {
		return EvaluateResult{}, err
	}
	return EvaluateResult{
		Property: explained.Property,
		Value:    explained.Value,
		Decision: explained.Decision.Kind,
	}, nil
}

// EvaluateBatch resolves several properties against the same namespace.
func (s *Service) EvaluateBatch(namespace string, reqs []EvaluateRequest) ([]EvaluateResult, error) {
	results := make([]EvaluateResult, 0, len(reqs))
	for _, req := range reqs {
		result, err := s.Evaluate(namespace, req)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// Explain resolves one property and returns the full decision trace.
func (s *Service) Explain(namespace string, req EvaluateRequest) (ExplainResult, error) {
	evalCtx, err := wire.DecodeContext(req.Context)
	if err != nil {
		return ExplainResult{}, err
	}

	feature := gatekeep.Feature{Namespace: namespace, Property: req.Property}
	value, decision, err := gatekeep.Explain[any](s.Registry(namespace), feature, evalCtx)
	if err != nil {
		return ExplainResult{}, err
	}

	encoded, err := wire.EncodeValue(value)
	if err != nil {
		return ExplainResult{}, fmt.Errorf("encode %q value: %w", feature.Key(), err)
	}

	result := ExplainResult{
		Property: req.Property,
		Value:    encoded,
		Decision: DecisionJSON{
			Kind:                  string(decision.Kind),
			FeatureKey:            decision.FeatureKey,
			RuleIndex:             decision.RuleIndex,
			Specificity:           decision.Specificity,
			Bucket:                decision.Bucket,
			SkippedByRolloutIndex: decision.SkippedByRolloutIndex,
		},
	}
	if decision.Rule != nil {
		result.Decision.RuleNote = decision.Rule.Note
	}
	return result, nil
}
