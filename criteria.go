package gatekeep

// Predicate is a caller-supplied extension constraint over the full
// evaluation context. Predicates must be pure: the same context must
// always produce the same answer.
type Predicate func(Context) bool

// TargetingCriteria is the conjunction of a rule's constraints. Every
// field is optional; an empty set or absent bound matches everything on
// that dimension. A zero-value criteria therefore matches every context.
type TargetingCriteria struct {
	// Locales and Platforms are treated as sets; empty means match-all.
	Locales   []string
	Platforms []string

	// Versions constrains the app version; the upper bound is exclusive.
	Versions VersionRange

	// Axes maps an axis id to the set of acceptable axis value ids. An
	// axis present here but absent from the context never matches.
	Axes map[string][]string

	// Extension is an optional escape hatch for constraints the built-in
	// dimensions cannot express. ExtensionWeight is its specificity
	// contribution; zero means the default weight of 1.
	Extension       Predicate
	ExtensionWeight int
}

// Matches reports whether every present constraint is satisfied by ctx.
func (c TargetingCriteria) Matches(ctx Context) bool {
	if len(c.Locales) > 0 && !containsString(c.Locales, ctx.Locale) {
		return false
	}
	if len(c.Platforms) > 0 && !containsString(c.Platforms, ctx.Platform) {
		return false
	}
	if !c.Versions.Contains(ctx.Version) {
		return false
	}
	for axis, accepted := range c.Axes {
		value, ok := ctx.Axis(axis)
		if !ok || !containsString(accepted, value) {
			return false
		}
	}
	if c.Extension != nil && !c.Extension(ctx) {
		return false
	}
	return true
}

// Specificity counts the targeting dimensions the criteria constrain.
// Locale, platform, and version each contribute 1 when constrained; every
// axis constraint contributes 1; an extension predicate contributes its
// declared weight (default 1). Specificity only orders rules; it plays no
// part in whether a rule matches.
func (c TargetingCriteria) Specificity() int {
	score := 0
	if len(c.Locales) > 0 {
		score++
	}
	if len(c.Platforms) > 0 {
		score++
	}
	if c.Versions.Bounded() {
		score++
	}
	score += len(c.Axes)
	if c.Extension != nil {
		weight := c.ExtensionWeight
		if weight <= 0 {
			weight = 1
		}
		score += weight
	}
	return score
}

func containsString(values []string, value string) bool {
	for _, candidate := range values {
		if candidate == value {
			return true
		}
	}
	return false
}
