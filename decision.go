package gatekeep

// DecisionKind classifies how an evaluation arrived at its value.
type DecisionKind string

const (
	// DecisionRegistryDisabled means the registry's kill switch was set
	// and the default was returned without scanning rules.
	DecisionRegistryDisabled DecisionKind = "registry_disabled"

	// DecisionInactive means the flag itself was inactive.
	DecisionInactive DecisionKind = "inactive"

	// DecisionRule means a rule matched and passed its rollout gate.
	DecisionRule DecisionKind = "rule"

	// DecisionDefault means no rule produced a value.
	DecisionDefault DecisionKind = "default"
)

// Decision is the explainable trace of one evaluation.
type Decision struct {
	Kind       DecisionKind
	FeatureKey string

	// Rule and RuleIndex identify the winning rule in declaration order.
	// Rule is nil unless Kind is DecisionRule.
	Rule      *Rule
	RuleIndex int

	// Specificity is the winning rule's specificity, or -1.
	Specificity int

	// Bucket is the basis-point bucket computed for the context's stable
	// id, or -1 when bucketing never ran (kill switch, inactive flag, or
	// no matching rule carried a partial ramp-up).
	Bucket int

	// SkippedByRollout is the highest-specificity rule whose criteria
	// matched but whose rollout gate failed, tracked even when a later
	// rule or the default won. Nil when no matching rule was gated out.
	SkippedByRollout      *Rule
	SkippedByRolloutIndex int
}
