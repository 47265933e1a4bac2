package gatekeep

// Rule pairs targeting criteria with a ramp-up gate and the value produced
// when both pass. Rules are immutable once attached to a FlagDefinition.
type Rule struct {
	Criteria TargetingCriteria

	// RampUp is the rollout percentage in basis points (10000 = 100%).
	RampUp int

	// Allowlist contains stable ids that bypass the ramp-up gate for this
	// rule, including at 0%.
	Allowlist []StableID

	// Note is free-form operator documentation; it never affects
	// evaluation.
	Note string

	Value any
}

// FlagDefinition is the complete definition of one feature flag: a
// required default, an ordered rule list, an active toggle, and the salt
// that namespaces this flag's rollout buckets. An inactive flag always
// resolves to its default without consulting rules.
type FlagDefinition struct {
	Default   any
	Rules     []Rule
	Active    bool
	Salt      string
	Allowlist []StableID
}

func (d *FlagDefinition) inAllowlist(id StableID) bool {
	return containsStableID(d.Allowlist, id)
}
