package gatekeep

import "sort"

// evaluateDefinition resolves one flag definition against a context. It is
// a pure function: identical inputs always produce the identical value and
// decision, which is what makes evaluations reproducible and safe to
// retry.
func evaluateDefinition(key string, def *FlagDefinition, ctx Context) (any, Decision) {
	decision := Decision{
		FeatureKey:            key,
		RuleIndex:             -1,
		Specificity:           -1,
		Bucket:                -1,
		SkippedByRolloutIndex: -1,
	}

	if !def.Active {
		decision.Kind = DecisionInactive
		return def.Default, decision
	}

	// The bucket is a function of (stable id, flag key, salt) only, so one
	// digest covers every rule of this flag. Computed lazily: fully open
	// or fully closed ramp-ups never need it.
	bucketed := false
	bucket := -1
	inBucket := func(rampUp int) bool {
		if rampUp >= bucketSpace {
			return true
		}
		if rampUp <= 0 {
			return false
		}
		if !bucketed {
			bucket = Bucket(ctx.StableID, key, def.Salt)
			decision.Bucket = bucket
			bucketed = true
		}
		return InRollout(bucket, rampUp)
	}

	for _, candidate := range sortRules(def.Rules) {
		rule := candidate.rule
		if !rule.Criteria.Matches(ctx) {
			continue
		}

		allowed := containsStableID(rule.Allowlist, ctx.StableID) ||
			def.inAllowlist(ctx.StableID)
		if allowed || inBucket(rule.RampUp) {
			decision.Kind = DecisionRule
			decision.Rule = rule
			decision.RuleIndex = candidate.index
			decision.Specificity = candidate.specificity
			return rule.Value, decision
		}

		// Rules arrive in descending specificity, so the first gated rule
		// is the most specific one.
		if decision.SkippedByRollout == nil {
			decision.SkippedByRollout = rule
			decision.SkippedByRolloutIndex = candidate.index
		}
	}

	decision.Kind = DecisionDefault
	return def.Default, decision
}

type sortedRule struct {
	rule        *Rule
	index       int
	specificity int
}

// sortRules orders rules by descending specificity. The sort is stable:
// rules of equal specificity keep their declaration order, which is the
// tie-break the selection guarantee depends on.
func sortRules(rules []Rule) []sortedRule {
	sorted := make([]sortedRule, len(rules))
	for i := range rules {
		sorted[i] = sortedRule{
			rule:        &rules[i],
			index:       i,
			specificity: rules[i].Criteria.Specificity(),
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].specificity > sorted[j].specificity
	})
	return sorted
}
