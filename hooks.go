package gatekeep

import "time"

// Hook receives structured events from a registry and its evaluations.
// Implementations are optional; the engine behaves identically with no
// hook installed. Hooks run synchronously on the evaluating goroutine and
// sit on the hot path, so they must not block or perform I/O.
type Hook interface {
	Evaluation(EvaluationEvent)
	ConfigLoad(ConfigLoadEvent)
	ConfigRollback(ConfigRollbackEvent)
}

// EvaluationEvent describes one completed evaluation.
type EvaluationEvent struct {
	Namespace  string
	FeatureKey string
	Kind       DecisionKind
	Duration   time.Duration

	// MatchedSpecificity is the winning rule's specificity, or -1 when no
	// rule won.
	MatchedSpecificity int
}

// ConfigLoadEvent describes a snapshot being installed as active.
type ConfigLoadEvent struct {
	Namespace    string
	FeatureCount int
	Version      string
}

// ConfigRollbackEvent describes a rollback attempt.
type ConfigRollbackEvent struct {
	Namespace string
	Steps     int
	Success   bool
}

// NopHook is a Hook that ignores every event.
type NopHook struct{}

func (NopHook) Evaluation(EvaluationEvent)         {}
func (NopHook) ConfigLoad(ConfigLoadEvent)         {}
func (NopHook) ConfigRollback(ConfigRollbackEvent) {}

// Hooks fans events out to several hooks in order.
func Hooks(hooks ...Hook) Hook {
	return multiHook(hooks)
}

type multiHook []Hook

func (m multiHook) Evaluation(e EvaluationEvent) {
	for _, h := range m {
		h.Evaluation(e)
	}
}

func (m multiHook) ConfigLoad(e ConfigLoadEvent) {
	for _, h := range m {
		h.ConfigLoad(e)
	}
}

func (m multiHook) ConfigRollback(e ConfigRollbackEvent) {
	for _, h := range m {
		h.ConfigRollback(e)
	}
}
