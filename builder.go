package gatekeep

// FlagBuilder accumulates rules and settings and produces an immutable
// [FlagDefinition]. The zero ramp-up for a rule is "nobody", so every rule
// must state its rollout explicitly via [RuleBuilder.RampUp] or
// [RuleBuilder.RampUpBasisPoints].
type FlagBuilder[T any] struct {
	def FlagDefinition
}

// NewFlag starts a builder for a flag with the given default value. Flags
// start active with an empty salt.
func NewFlag[T any](defaultValue T) *FlagBuilder[T] {
	return &FlagBuilder[T]{def: FlagDefinition{Default: defaultValue, Active: true}}
}

// Salt sets the string namespacing this flag's rollout buckets. Changing
// it re-buckets every stable id.
func (b *FlagBuilder[T]) Salt(salt string) *FlagBuilder[T] {
	b.def.Salt = salt
	return b
}

// Inactive marks the flag as always resolving to its default.
func (b *FlagBuilder[T]) Inactive() *FlagBuilder[T] {
	b.def.Active = false
	return b
}

// Allow adds stable ids to the flag-level rollout allowlist.
func (b *FlagBuilder[T]) Allow(ids ...StableID) *FlagBuilder[T] {
	b.def.Allowlist = append(b.def.Allowlist, ids...)
	return b
}

// Rule starts a rule producing value when it matches. Finish the rule with
// [RuleBuilder.Done].
func (b *FlagBuilder[T]) Rule(value T) *RuleBuilder[T] {
	return &RuleBuilder[T]{flag: b, rule: Rule{Value: value}}
}

// Build returns the accumulated immutable definition. The builder must not
// be reused afterwards.
func (b *FlagBuilder[T]) Build() *FlagDefinition {
	def := b.def
	return &def
}

// RuleBuilder accumulates one rule's criteria and rollout.
type RuleBuilder[T any] struct {
	flag *FlagBuilder[T]
	rule Rule
}

// Locales constrains the rule to the given locale ids.
func (b *RuleBuilder[T]) Locales(locales ...string) *RuleBuilder[T] {
	b.rule.Criteria.Locales = append(b.rule.Criteria.Locales, locales...)
	return b
}

// Platforms constrains the rule to the given platform ids.
func (b *RuleBuilder[T]) Platforms(platforms ...string) *RuleBuilder[T] {
	b.rule.Criteria.Platforms = append(b.rule.Criteria.Platforms, platforms...)
	return b
}

// MinVersion sets the inclusive lower version bound.
func (b *RuleBuilder[T]) MinVersion(v Version) *RuleBuilder[T] {
	b.rule.Criteria.Versions.Min = &v
	return b
}

// MaxVersion sets the exclusive upper version bound.
func (b *RuleBuilder[T]) MaxVersion(v Version) *RuleBuilder[T] {
	b.rule.Criteria.Versions.Max = &v
	return b
}

// Axis constrains a custom axis to the given acceptable value ids.
func (b *RuleBuilder[T]) Axis(id string, values ...string) *RuleBuilder[T] {
	if b.rule.Criteria.Axes == nil {
		b.rule.Criteria.Axes = map[string][]string{}
	}
	b.rule.Criteria.Axes[id] = append(b.rule.Criteria.Axes[id], values...)
	return b
}

// Extension attaches a custom predicate with the default specificity
// weight of 1.
func (b *RuleBuilder[T]) Extension(pred Predicate) *RuleBuilder[T] {
	b.rule.Criteria.Extension = pred
	return b
}

// ExtensionWeighted attaches a custom predicate with an explicit
// specificity weight.
func (b *RuleBuilder[T]) ExtensionWeighted(pred Predicate, weight int) *RuleBuilder[T] {
	b.rule.Criteria.Extension = pred
	b.rule.Criteria.ExtensionWeight = weight
	return b
}

// RampUp sets the rollout as a whole percentage (0-100).
func (b *RuleBuilder[T]) RampUp(percent int) *RuleBuilder[T] {
	b.rule.RampUp = percent * 100
	return b
}

// RampUpBasisPoints sets the rollout in basis points (0-10000) for
// sub-percent precision.
func (b *RuleBuilder[T]) RampUpBasisPoints(basisPoints int) *RuleBuilder[T] {
	b.rule.RampUp = basisPoints
	return b
}

// Allow adds stable ids that bypass this rule's rollout gate.
func (b *RuleBuilder[T]) Allow(ids ...StableID) *RuleBuilder[T] {
	b.rule.Allowlist = append(b.rule.Allowlist, ids...)
	return b
}

// Note attaches operator documentation to the rule.
func (b *RuleBuilder[T]) Note(note string) *RuleBuilder[T] {
	b.rule.Note = note
	return b
}

// Done appends the rule to the flag and returns the flag builder. Rule
// declaration order is significant: it breaks specificity ties.
func (b *RuleBuilder[T]) Done() *FlagBuilder[T] {
	b.flag.def.Rules = append(b.flag.def.Rules, b.rule)
	return b.flag
}

// ConfigurationBuilder assembles a snapshot flag by flag.
type ConfigurationBuilder struct {
	flags map[string]*FlagDefinition
	meta  Metadata
}

// NewConfigurationBuilder starts an empty snapshot.
func NewConfigurationBuilder() *ConfigurationBuilder {
	return &ConfigurationBuilder{flags: map[string]*FlagDefinition{}}
}

// Flag registers a definition under the feature's canonical key.
func (b *ConfigurationBuilder) Flag(f Feature, def *FlagDefinition) *ConfigurationBuilder {
	b.flags[f.Key()] = def
	return b
}

// Metadata sets the snapshot metadata.
func (b *ConfigurationBuilder) Metadata(meta Metadata) *ConfigurationBuilder {
	b.meta = meta
	return b
}

// Build returns the immutable snapshot.
func (b *ConfigurationBuilder) Build() *Configuration {
	return NewConfiguration(b.flags, b.meta)
}
