package wire

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/gatekeep/gatekeep"
)

func TestDecodeSnapshotEmpty(t *testing.T) {
	cfg, err := DecodeSnapshot([]byte(`{"flags": []}`))
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if cfg.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", cfg.Len())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	doc := `{
		"metadata": {"version": "2024-06-01", "source": "test"},
		"flags": [
			{
				"key": "feature::app::darkMode",
				"default_value": {"type": "bool", "value": false},
				"salt": "v2",
				"is_active": true,
				"rules": [
					{
						"value": {"type": "bool", "value": true},
						"ramp_up": 5000,
						"note": "ios beta",
						"locales": ["en-US"],
						"platforms": ["ios"],
						"version_range": {"type": "min", "min": "2.0.0"}
					}
				]
			}
		]
	}`

	cfg, err := DecodeSnapshot([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}

	def, ok := cfg.Flag("feature::app::darkMode")
	if !ok {
		t.Fatal("decoded snapshot missing the flag")
	}
	if def.Default != false || !def.Active || def.Salt != "v2" {
		t.Fatalf("flag = %+v", def)
	}
	if len(def.Rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(def.Rules))
	}
	rule := def.Rules[0]
	if rule.Value != true || rule.RampUp != 5000 || rule.Note != "ios beta" {
		t.Fatalf("rule = %+v", rule)
	}
	if got := rule.Criteria.Specificity(); got != 3 {
		t.Fatalf("Specificity() = %d, want 3", got)
	}
	if cfg.Metadata().Version != "2024-06-01" {
		t.Fatalf("metadata = %+v", cfg.Metadata())
	}

	encoded, err := EncodeSnapshot(cfg)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	again, err := DecodeSnapshot(encoded)
	if err != nil {
		t.Fatalf("DecodeSnapshot(re-encoded): %v", err)
	}
	if again.Len() != 1 {
		t.Fatalf("re-decoded Len() = %d, want 1", again.Len())
	}
	reDef, _ := again.Flag("feature::app::darkMode")
	reRule := reDef.Rules[0]
	if reRule.RampUp != rule.RampUp || reRule.Criteria.Specificity() != 3 {
		t.Fatalf("re-decoded rule = %+v", reRule)
	}
	if reRule.Criteria.Versions.Min == nil || reRule.Criteria.Versions.Min.String() != "2.0.0" {
		t.Fatalf("re-decoded version range = %+v", reRule.Criteria.Versions)
	}
}

func TestSnapshotRoundTripAllowlist(t *testing.T) {
	vip := gatekeep.NewStableID("vip-user")
	doc := `{
		"flags": [
			{
				"key": "feature::app::earlyAccess",
				"default_value": {"type": "bool", "value": false},
				"is_active": true,
				"ramp_up_allowlist": ["` + vip.Hex() + `"],
				"rules": [
					{"value": {"type": "bool", "value": true}, "ramp_up": 0, "ramp_up_allowlist": ["` + vip.Hex() + `"]}
				]
			}
		]
	}`

	cfg, err := DecodeSnapshot([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}

	def, _ := cfg.Flag("feature::app::earlyAccess")
	if len(def.Allowlist) != 1 || def.Allowlist[0] != vip {
		t.Fatalf("flag allowlist = %+v, want [%s]", def.Allowlist, vip.Hex())
	}
	if len(def.Rules[0].Allowlist) != 1 || def.Rules[0].Allowlist[0] != vip {
		t.Fatalf("rule allowlist = %+v", def.Rules[0].Allowlist)
	}

	// Allowlists must survive re-encoding in canonical hex form.
	encoded, err := EncodeSnapshot(cfg)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	if !strings.Contains(string(encoded), vip.Hex()) {
		t.Fatalf("encoded snapshot missing allowlist id: %s", encoded)
	}
}

func TestSnapshotRoundTripInactiveFlag(t *testing.T) {
	doc := `{"flags": [{"key": "feature::app::old", "default_value": {"type": "string", "value": "x"}, "is_active": false}]}`

	cfg, err := DecodeSnapshot([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	def, _ := cfg.Flag("feature::app::old")
	if def.Active {
		t.Fatal("decoded flag must be inactive")
	}

	encoded, err := EncodeSnapshot(cfg)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	again, err := DecodeSnapshot(encoded)
	if err != nil {
		t.Fatalf("DecodeSnapshot(re-encoded): %v", err)
	}
	reDef, _ := again.Flag("feature::app::old")
	if reDef.Active {
		t.Fatal("is_active=false lost in round trip")
	}
}

func TestEncodeSnapshotDeterministic(t *testing.T) {
	cfg := gatekeep.NewConfigurationBuilder().
		Flag(gatekeep.Feature{Namespace: "app", Property: "b"}, gatekeep.NewFlag("b").Build()).
		Flag(gatekeep.Feature{Namespace: "app", Property: "a"}, gatekeep.NewFlag("a").Build()).
		Flag(gatekeep.Feature{Namespace: "app", Property: "c"}, gatekeep.NewFlag("c").Build()).
		Build()

	first, err := EncodeSnapshot(cfg)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	for i := 0; i < 5; i++ {
		next, err := EncodeSnapshot(cfg)
		if err != nil {
			t.Fatalf("EncodeSnapshot: %v", err)
		}
		if string(next) != string(first) {
			t.Fatalf("encoding %d differs:\n%s\n%s", i, first, next)
		}
	}

	aIdx := strings.Index(string(first), "feature::app::a")
	cIdx := strings.Index(string(first), "feature::app::c")
	if aIdx == -1 || cIdx == -1 || aIdx > cIdx {
		t.Fatalf("flags not in lexical key order: %s", first)
	}
}

func TestDecodeSnapshotRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not JSON", doc: `{`},
		{name: "unknown top-level field", doc: `{"flags": [], "extra": 1}`},
		{name: "trailing data", doc: `{"flags": []}{}`},
		{
			name: "bad feature key",
			doc:  `{"flags": [{"key": "darkMode", "default_value": {"type": "bool", "value": false}, "is_active": true}]}`,
		},
		{
			name: "duplicate key",
			doc: `{"flags": [
				{"key": "feature::app::x", "default_value": {"type": "bool", "value": false}, "is_active": true},
				{"key": "feature::app::x", "default_value": {"type": "bool", "value": true}, "is_active": true}
			]}`,
		},
		{
			name: "unknown value type",
			doc:  `{"flags": [{"key": "feature::app::x", "default_value": {"type": "date", "value": "2024"}, "is_active": true}]}`,
		},
		{
			name: "ramp_up above 10000",
			doc: `{"flags": [{"key": "feature::app::x", "default_value": {"type": "bool", "value": false}, "is_active": true,
				"rules": [{"value": {"type": "bool", "value": true}, "ramp_up": 10001}]}]}`,
		},
		{
			name: "negative ramp_up",
			doc: `{"flags": [{"key": "feature::app::x", "default_value": {"type": "bool", "value": false}, "is_active": true,
				"rules": [{"value": {"type": "bool", "value": true}, "ramp_up": -1}]}]}`,
		},
		{
			name: "unknown version range type",
			doc: `{"flags": [{"key": "feature::app::x", "default_value": {"type": "bool", "value": false}, "is_active": true,
				"rules": [{"value": {"type": "bool", "value": true}, "ramp_up": 100, "version_range": {"type": "between", "min": "1.0.0"}}]}]}`,
		},
		{
			name: "unparseable version bound",
			doc: `{"flags": [{"key": "feature::app::x", "default_value": {"type": "bool", "value": false}, "is_active": true,
				"rules": [{"value": {"type": "bool", "value": true}, "ramp_up": 100, "version_range": {"type": "min", "min": "abc"}}]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSnapshot([]byte(tt.doc))
			if !errors.Is(err, ErrInvalidSnapshot) {
				t.Fatalf("err = %v, want ErrInvalidSnapshot", err)
			}
		})
	}
}

func TestDecodePatch(t *testing.T) {
	doc := `{
		"flags": [{"key": "feature::app::darkMode", "default_value": {"type": "bool", "value": true}, "is_active": true}],
		"remove_keys": ["feature::app::old"]
	}`

	patch, err := DecodePatch([]byte(doc))
	if err != nil {
		t.Fatalf("DecodePatch: %v", err)
	}
	if len(patch.Flags) != 1 || len(patch.RemoveKeys) != 1 {
		t.Fatalf("patch = %+v", patch)
	}

	base := gatekeep.NewConfigurationBuilder().
		Flag(gatekeep.Feature{Namespace: "app", Property: "darkMode"}, gatekeep.NewFlag(false).Build()).
		Flag(gatekeep.Feature{Namespace: "app", Property: "old"}, gatekeep.NewFlag("x").Build()).
		Flag(gatekeep.Feature{Namespace: "app", Property: "keep"}, gatekeep.NewFlag(1).Build()).
		Build()

	next := base.Apply(patch, gatekeep.Metadata{Source: "patch"})
	if next.Len() != 2 {
		t.Fatalf("applied Len() = %d, want 2", next.Len())
	}
	if _, ok := next.Flag("feature::app::old"); ok {
		t.Fatal("removed key survived the patch")
	}
	def, ok := next.Flag("feature::app::darkMode")
	if !ok || def.Default != true {
		t.Fatalf("patched flag = %+v, %v", def, ok)
	}
	if _, ok := next.Flag("feature::app::keep"); !ok {
		t.Fatal("untouched flag lost by the patch")
	}
}

func TestDecodePatchRejectsBadRemoveKey(t *testing.T) {
	_, err := DecodePatch([]byte(`{"remove_keys": ["not-a-key"]}`))
	if !errors.Is(err, ErrInvalidPatch) {
		t.Fatalf("err = %v, want ErrInvalidPatch", err)
	}
}

func TestEncodePatchRoundTrip(t *testing.T) {
	patch := gatekeep.Patch{
		Flags: map[string]*gatekeep.FlagDefinition{
			"feature::app::darkMode": gatekeep.NewFlag(true).Salt("v2").Build(),
		},
		RemoveKeys: []string{"feature::app::old"},
	}

	encoded, err := EncodePatch(patch)
	if err != nil {
		t.Fatalf("EncodePatch: %v", err)
	}
	decoded, err := DecodePatch(encoded)
	if err != nil {
		t.Fatalf("DecodePatch: %v", err)
	}
	if len(decoded.Flags) != 1 || decoded.Flags["feature::app::darkMode"] == nil {
		t.Fatalf("decoded patch = %+v", decoded)
	}
	if len(decoded.RemoveKeys) != 1 || decoded.RemoveKeys[0] != "feature::app::old" {
		t.Fatalf("decoded remove keys = %v", decoded.RemoveKeys)
	}
}

func TestEncodeSnapshotRejectsExtensionPredicates(t *testing.T) {
	def := gatekeep.NewFlag(false).
		Rule(true).Extension(func(gatekeep.Context) bool { return true }).RampUp(100).Done().
		Build()
	cfg := gatekeep.NewConfigurationBuilder().
		Flag(gatekeep.Feature{Namespace: "app", Property: "darkMode"}, def).
		Build()

	_, err := EncodeSnapshot(cfg)
	if !errors.Is(err, ErrNotSerializable) {
		t.Fatalf("err = %v, want ErrNotSerializable", err)
	}
}

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want any
	}{
		{name: "bool", in: Value{Type: TypeBool, Value: json.RawMessage(`true`)}, want: true},
		{name: "string", in: Value{Type: TypeString, Value: json.RawMessage(`"hello"`)}, want: "hello"},
		{name: "int", in: Value{Type: TypeInt, Value: json.RawMessage(`42`)}, want: int64(42)},
		{name: "double", in: Value{Type: TypeDouble, Value: json.RawMessage(`2.5`)}, want: 2.5},
		{name: "enum", in: Value{Type: TypeEnum, Value: json.RawMessage(`"VARIANT_B"`)}, want: Enum("VARIANT_B")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeValue(tt.in)
			if err != nil {
				t.Fatalf("DecodeValue: %v", err)
			}
			if got != tt.want {
				t.Fatalf("DecodeValue() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}

	t.Run("data", func(t *testing.T) {
		got, err := DecodeValue(Value{Type: TypeData, Value: json.RawMessage(`{"nested": [1, 2]}`)})
		if err != nil {
			t.Fatalf("DecodeValue: %v", err)
		}
		raw, ok := got.(json.RawMessage)
		if !ok {
			t.Fatalf("DecodeValue() = %T, want json.RawMessage", got)
		}
		if string(raw) != `{"nested": [1, 2]}` {
			t.Fatalf("payload = %s", raw)
		}
	})

	t.Run("data rejects invalid JSON", func(t *testing.T) {
		if _, err := DecodeValue(Value{Type: TypeData, Value: json.RawMessage(`{`)}); err == nil {
			t.Fatal("want error for invalid data payload")
		}
	})

	t.Run("payload type mismatch", func(t *testing.T) {
		if _, err := DecodeValue(Value{Type: TypeInt, Value: json.RawMessage(`"ten"`)}); err == nil {
			t.Fatal("want error for string payload under int tag")
		}
	})
}

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		wantType ValueType
		wantRaw  string
	}{
		{name: "bool", in: true, wantType: TypeBool, wantRaw: `true`},
		{name: "string", in: "hello", wantType: TypeString, wantRaw: `"hello"`},
		{name: "int", in: 42, wantType: TypeInt, wantRaw: `42`},
		{name: "int64", in: int64(42), wantType: TypeInt, wantRaw: `42`},
		{name: "double", in: 2.5, wantType: TypeDouble, wantRaw: `2.5`},
		{name: "enum", in: Enum("VARIANT_B"), wantType: TypeEnum, wantRaw: `"VARIANT_B"`},
		{name: "data", in: json.RawMessage(`[1,2]`), wantType: TypeData, wantRaw: `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeValue(tt.in)
			if err != nil {
				t.Fatalf("EncodeValue: %v", err)
			}
			if got.Type != tt.wantType || string(got.Value) != tt.wantRaw {
				t.Fatalf("EncodeValue() = {%s %s}, want {%s %s}", got.Type, got.Value, tt.wantType, tt.wantRaw)
			}
		})
	}

	t.Run("unsupported payload", func(t *testing.T) {
		_, err := EncodeValue(struct{ X int }{1})
		if !errors.Is(err, ErrNotSerializable) {
			t.Fatalf("err = %v, want ErrNotSerializable", err)
		}
	})
}

func TestValueRoundTripThroughEvaluation(t *testing.T) {
	// A decoded snapshot must evaluate with the wire's payload types, not
	// hand-built Go ones: ints arrive as int64.
	doc := `{"flags": [{"key": "feature::app::maxRetries", "default_value": {"type": "int", "value": 3}, "is_active": true}]}`

	cfg, err := DecodeSnapshot([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	r := gatekeep.NewRegistry("app")
	r.Load(cfg)

	got, err := gatekeep.Evaluate[int64](r, gatekeep.Feature{Namespace: "app", Property: "maxRetries"}, gatekeep.Context{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got != 3 {
		t.Fatalf("value = %d, want 3", got)
	}
}

func FuzzDecodeSnapshot(f *testing.F) {
	f.Add([]byte(`{"flags": []}`))
	f.Add([]byte(`{"flags": [{"key": "feature::app::x", "default_value": {"type": "bool", "value": true}, "is_active": true}]}`))
	f.Add([]byte(`{`))
	f.Add([]byte(`[]`))

	f.Fuzz(func(t *testing.T, data []byte) {
		cfg, err := DecodeSnapshot(data)
		if err != nil {
			if !errors.Is(err, ErrInvalidSnapshot) {
				t.Fatalf("non-sentinel decode error: %v", err)
			}
			return
		}
		// Accepted documents must re-encode unless they carry payload
		// types EncodeSnapshot cannot express, which DecodeSnapshot never
		// produces.
		if _, err := EncodeSnapshot(cfg); err != nil {
			t.Fatalf("accepted snapshot failed to encode: %v", err)
		}
	})
}
