package gatekeep

import (
	"testing"
)

func TestFlagBuilder(t *testing.T) {
	vip := NewStableID("vip-user")
	def := NewFlag(3).
		Salt("2024-06").
		Allow(vip).
		Rule(7).
		Platforms("android").
		Locales("en-US", "en-GB").
		MinVersion(Version{2, 0, 0}).
		MaxVersion(Version{3, 0, 0}).
		Axis("tier", "gold", "platinum").
		RampUp(50).
		Allow(vip).
		Note("android retry experiment").
		Done().
		Build()

	if def.Default != 3 {
		t.Fatalf("Default = %v, want 3", def.Default)
	}
	if !def.Active {
		t.Fatal("flags must default to active")
	}
	if def.Salt != "2024-06" {
		t.Fatalf("Salt = %q", def.Salt)
	}
	if !containsStableID(def.Allowlist, vip) {
		t.Fatal("flag allowlist missing the added id")
	}
	if len(def.Rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(def.Rules))
	}

	rule := def.Rules[0]
	if rule.Value != 7 {
		t.Fatalf("rule value = %v, want 7", rule.Value)
	}
	if rule.RampUp != 5000 {
		t.Fatalf("RampUp = %d basis points, want 5000", rule.RampUp)
	}
	if rule.Note != "android retry experiment" {
		t.Fatalf("Note = %q", rule.Note)
	}
	if !containsStableID(rule.Allowlist, vip) {
		t.Fatal("rule allowlist missing the added id")
	}
	if got := rule.Criteria.Specificity(); got != 4 {
		t.Fatalf("Specificity() = %d, want 4", got)
	}
	if len(rule.Criteria.Locales) != 2 || len(rule.Criteria.Axes["tier"]) != 2 {
		t.Fatalf("criteria = %+v", rule.Criteria)
	}
}

func TestFlagBuilderInactive(t *testing.T) {
	def := NewFlag("x").Inactive().Build()
	if def.Active {
		t.Fatal("Inactive() must clear the active bit")
	}
}

func TestRuleBuilderRampUpBasisPoints(t *testing.T) {
	def := NewFlag(false).
		Rule(true).RampUpBasisPoints(25).Done().
		Build()
	if got := def.Rules[0].RampUp; got != 25 {
		t.Fatalf("RampUp = %d, want 25", got)
	}
}

func TestRuleBuilderExtension(t *testing.T) {
	pred := func(ctx Context) bool {
		value, ok := ctx.Axis("beta")
		return ok && value == "yes"
	}

	t.Run("default weight", func(t *testing.T) {
		def := NewFlag(false).
			Rule(true).Extension(pred).RampUp(100).Done().
			Build()
		if got := def.Rules[0].Criteria.Specificity(); got != 1 {
			t.Fatalf("Specificity() = %d, want 1", got)
		}
	})

	t.Run("explicit weight", func(t *testing.T) {
		def := NewFlag(false).
			Rule(true).ExtensionWeighted(pred, 3).RampUp(100).Done().
			Build()
		if got := def.Rules[0].Criteria.Specificity(); got != 3 {
			t.Fatalf("Specificity() = %d, want 3", got)
		}
	})
}

func TestFlagBuilderRuleOrder(t *testing.T) {
	def := NewFlag(0).
		Rule(1).RampUp(100).Done().
		Rule(2).RampUp(100).Done().
		Rule(3).RampUp(100).Done().
		Build()

	for i, want := range []int{1, 2, 3} {
		if def.Rules[i].Value != want {
			t.Fatalf("Rules[%d].Value = %v, want %d", i, def.Rules[i].Value, want)
		}
	}
}

func TestConfigurationBuilder(t *testing.T) {
	darkMode := Feature{Namespace: "app", Property: "darkMode"}
	retries := Feature{Namespace: "app", Property: "maxRetries"}

	cfg := NewConfigurationBuilder().
		Flag(darkMode, NewFlag(false).Build()).
		Flag(retries, NewFlag(3).Build()).
		Metadata(Metadata{Version: "v1", Source: "test"}).
		Build()

	if cfg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", cfg.Len())
	}
	if _, ok := cfg.Flag(darkMode.Key()); !ok {
		t.Fatalf("Flag(%q) missing", darkMode.Key())
	}
	if got := cfg.Metadata().Version; got != "v1" {
		t.Fatalf("metadata version = %q, want v1", got)
	}

	keys := cfg.Keys()
	if len(keys) != 2 || keys[0] > keys[1] {
		t.Fatalf("Keys() = %v, want two sorted keys", keys)
	}
}
