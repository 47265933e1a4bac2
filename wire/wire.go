// Package wire is the JSON serialization boundary for configuration
// snapshots and patches. All structural validation happens here: the core
// engine only ever receives configurations this package has accepted.
//
// Flag values cross the wire as a tagged union {"type": ..., "value": ...}
// covering bool, string, int, double, enum, and opaque data payloads.
// Extension predicates are code, not data, and cannot be serialized;
// encoding a configuration that contains one fails.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/gatekeep/gatekeep"
)

var (
	// ErrInvalidSnapshot reports a malformed or semantically invalid
	// snapshot document.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrInvalidPatch reports a malformed or semantically invalid patch
	// document.
	ErrInvalidPatch = errors.New("invalid patch")

	// ErrNotSerializable reports a configuration that cannot be encoded,
	// such as one holding extension predicates.
	ErrNotSerializable = errors.New("configuration not serializable")
)

// ValueType tags a wire value's payload kind.
type ValueType string

const (
	TypeBool   ValueType = "bool"
	TypeString ValueType = "string"
	TypeInt    ValueType = "int"
	TypeDouble ValueType = "double"
	TypeEnum   ValueType = "enum"
	TypeData   ValueType = "data"
)

// Enum is a string payload that keeps its enum tagging through a
// round-trip, so hosts can distinguish enum members from plain strings.
type Enum string

// Value is the tagged-union wire form of a flag payload.
type Value struct {
	Type  ValueType       `json:"type"`
	Value json.RawMessage `json:"value"`
}

type snapshotJSON struct {
	Metadata *metadataJSON `json:"metadata,omitempty"`
	Flags    []flagJSON    `json:"flags"`
}

type patchJSON struct {
	Flags      []flagJSON `json:"flags,omitempty"`
	RemoveKeys []string   `json:"remove_keys,omitempty"`
}

type metadataJSON struct {
	Version     string `json:"version,omitempty"`
	GeneratedAt string `json:"generated_at,omitempty"`
	Source      string `json:"source,omitempty"`
}

type flagJSON struct {
	Key             string     `json:"key"`
	DefaultValue    Value      `json:"default_value"`
	Salt            string     `json:"salt,omitempty"`
	IsActive        bool       `json:"is_active"`
	RampUpAllowlist []string   `json:"ramp_up_allowlist,omitempty"`
	Rules           []ruleJSON `json:"rules,omitempty"`
}

type ruleJSON struct {
	Value           Value               `json:"value"`
	RampUp          int                 `json:"ramp_up"`
	RampUpAllowlist []string            `json:"ramp_up_allowlist,omitempty"`
	Note            string              `json:"note,omitempty"`
	Locales         []string            `json:"locales,omitempty"`
	Platforms       []string            `json:"platforms,omitempty"`
	VersionRange    *versionRangeJSON   `json:"version_range,omitempty"`
	Axes            map[string][]string `json:"axes,omitempty"`
}

type versionRangeJSON struct {
	Type string `json:"type"`
	Min  string `json:"min,omitempty"`
	Max  string `json:"max,omitempty"`
}

const (
	rangeUnbounded = "unbounded"
	rangeMin       = "min"
	rangeMax       = "max"
	rangeMinMax    = "min_max"
)

// DecodeSnapshot parses and validates a snapshot document into an
// immutable configuration.
func DecodeSnapshot(data []byte) (*gatekeep.Configuration, error) {
	var doc snapshotJSON
	if err := strictUnmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	flags, err := decodeFlags(doc.Flags)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	return gatekeep.NewConfiguration(flags, decodeMetadata(doc.Metadata)), nil
}

// EncodeSnapshot writes a configuration as a snapshot document. Flags are
// emitted in lexical key order so output is deterministic.
func EncodeSnapshot(cfg *gatekeep.Configuration) ([]byte, error) {
	doc := snapshotJSON{Flags: make([]flagJSON, 0, cfg.Len())}
	if meta := encodeMetadata(cfg.Metadata()); meta != nil {
		doc.Metadata = meta
	}

	for _, key := range cfg.Keys() {
		def, _ := cfg.Flag(key)
		encoded, err := encodeFlag(key, def)
		if err != nil {
			return nil, err
		}
		doc.Flags = append(doc.Flags, encoded)
	}

	return json.Marshal(doc)
}

// DecodePatch parses and validates a patch document.
func DecodePatch(data []byte) (gatekeep.Patch, error) {
	var doc patchJSON
	if err := strictUnmarshal(data, &doc); err != nil {
		return gatekeep.Patch{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	flags, err := decodeFlags(doc.Flags)
	if err != nil {
		return gatekeep.Patch{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	for i, key := range doc.RemoveKeys {
		if _, err := gatekeep.ParseFeatureKey(key); err != nil {
			return gatekeep.Patch{}, fmt.Errorf("%w: remove_keys[%d]: %v", ErrInvalidPatch, i, err)
		}
	}

	return gatekeep.Patch{Flags: flags, RemoveKeys: doc.RemoveKeys}, nil
}

// EncodePatch writes a patch document.
func EncodePatch(p gatekeep.Patch) ([]byte, error) {
	doc := patchJSON{RemoveKeys: p.RemoveKeys}
	keys := make([]string, 0, len(p.Flags))
	for key := range p.Flags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		encoded, err := encodeFlag(key, p.Flags[key])
		if err != nil {
			return nil, err
		}
		doc.Flags = append(doc.Flags, encoded)
	}
	return json.Marshal(doc)
}

func decodeFlags(flags []flagJSON) (map[string]*gatekeep.FlagDefinition, error) {
	decoded := make(map[string]*gatekeep.FlagDefinition, len(flags))
	for i, flag := range flags {
		if _, err := gatekeep.ParseFeatureKey(flag.Key); err != nil {
			return nil, fmt.Errorf("flags[%d]: %v", i, err)
		}
		if _, dup := decoded[flag.Key]; dup {
			return nil, fmt.Errorf("flags[%d]: duplicate key %q", i, flag.Key)
		}

		def, err := decodeFlag(flag)
		if err != nil {
			return nil, fmt.Errorf("flags[%d] %q: %v", i, flag.Key, err)
		}
		decoded[flag.Key] = def
	}
	return decoded, nil
}

func decodeFlag(flag flagJSON) (*gatekeep.FlagDefinition, error) {
	defaultValue, err := DecodeValue(flag.DefaultValue)
	if err != nil {
		return nil, fmt.Errorf("default_value: %v", err)
	}

	def := &gatekeep.FlagDefinition{
		Default:   defaultValue,
		Active:    flag.IsActive,
		Salt:      flag.Salt,
		Allowlist: decodeAllowlist(flag.RampUpAllowlist),
	}

	for i, rule := range flag.Rules {
		decoded, err := decodeRule(rule)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %v", i, err)
		}
		def.Rules = append(def.Rules, decoded)
	}

	return def, nil
}

func decodeRule(rule ruleJSON) (gatekeep.Rule, error) {
	value, err := DecodeValue(rule.Value)
	if err != nil {
		return gatekeep.Rule{}, fmt.Errorf("value: %v", err)
	}
	if rule.RampUp < 0 || rule.RampUp > 10000 {
		return gatekeep.Rule{}, fmt.Errorf("ramp_up %d out of range [0, 10000]", rule.RampUp)
	}

	versions, err := decodeVersionRange(rule.VersionRange)
	if err != nil {
		return gatekeep.Rule{}, err
	}

	return gatekeep.Rule{
		Criteria: gatekeep.TargetingCriteria{
			Locales:   rule.Locales,
			Platforms: rule.Platforms,
			Versions:  versions,
			Axes:      rule.Axes,
		},
		RampUp:    rule.RampUp,
		Allowlist: decodeAllowlist(rule.RampUpAllowlist),
		Note:      rule.Note,
		Value:     value,
	}, nil
}

func decodeVersionRange(raw *versionRangeJSON) (gatekeep.VersionRange, error) {
	if raw == nil {
		return gatekeep.VersionRange{}, nil
	}

	var versions gatekeep.VersionRange
	wantMin := raw.Type == rangeMin || raw.Type == rangeMinMax
	wantMax := raw.Type == rangeMax || raw.Type == rangeMinMax
	if raw.Type != rangeUnbounded && !wantMin && !wantMax {
		return versions, fmt.Errorf("version_range: unknown type %q", raw.Type)
	}

	if wantMin {
		v, err := gatekeep.ParseVersion(raw.Min)
		if err != nil {
			return versions, fmt.Errorf("version_range: min: %v", err)
		}
		versions.Min = &v
	}
	if wantMax {
		v, err := gatekeep.ParseVersion(raw.Max)
		if err != nil {
			return versions, fmt.Errorf("version_range: max: %v", err)
		}
		versions.Max = &v
	}
	return versions, nil
}

func decodeAllowlist(ids []string) []gatekeep.StableID {
	if len(ids) == 0 {
		return nil
	}
	decoded := make([]gatekeep.StableID, len(ids))
	for i, id := range ids {
		decoded[i] = gatekeep.NewStableID(id)
	}
	return decoded
}

func encodeFlag(key string, def *gatekeep.FlagDefinition) (flagJSON, error) {
	defaultValue, err := EncodeValue(def.Default)
	if err != nil {
		return flagJSON{}, fmt.Errorf("%q: default_value: %w", key, err)
	}

	encoded := flagJSON{
		Key:             key,
		DefaultValue:    defaultValue,
		Salt:            def.Salt,
		IsActive:        def.Active,
		RampUpAllowlist: encodeAllowlist(def.Allowlist),
	}

	for i, rule := range def.Rules {
		if rule.Criteria.Extension != nil {
			return flagJSON{}, fmt.Errorf("%w: %q rules[%d] has an extension predicate", ErrNotSerializable, key, i)
		}

		value, err := EncodeValue(rule.Value)
		if err != nil {
			return flagJSON{}, fmt.Errorf("%q: rules[%d]: %w", key, i, err)
		}

		encoded.Rules = append(encoded.Rules, ruleJSON{
			Value:           value,
			RampUp:          rule.RampUp,
			RampUpAllowlist: encodeAllowlist(rule.Allowlist),
			Note:            rule.Note,
			Locales:         rule.Criteria.Locales,
			Platforms:       rule.Criteria.Platforms,
			VersionRange:    encodeVersionRange(rule.Criteria.Versions),
			Axes:            rule.Criteria.Axes,
		})
	}

	return encoded, nil
}

func encodeVersionRange(r gatekeep.VersionRange) *versionRangeJSON {
	switch {
	case r.Min != nil && r.Max != nil:
		return &versionRangeJSON{Type: rangeMinMax, Min: r.Min.String(), Max: r.Max.String()}
	case r.Min != nil:
		return &versionRangeJSON{Type: rangeMin, Min: r.Min.String()}
	case r.Max != nil:
		return &versionRangeJSON{Type: rangeMax, Max: r.Max.String()}
	default:
		return nil
	}
}

func encodeAllowlist(ids []gatekeep.StableID) []string {
	if len(ids) == 0 {
		return nil
	}
	encoded := make([]string, len(ids))
	for i, id := range ids {
		encoded[i] = id.Hex()
	}
	return encoded
}

func decodeMetadata(raw *metadataJSON) gatekeep.Metadata {
	if raw == nil {
		return gatekeep.Metadata{}
	}
	meta := gatekeep.Metadata{Version: raw.Version, Source: raw.Source}
	if raw.GeneratedAt != "" {
		if t, err := time.Parse(time.RFC3339, raw.GeneratedAt); err == nil {
			meta.GeneratedAt = t
		}
	}
	return meta
}

func encodeMetadata(meta gatekeep.Metadata) *metadataJSON {
	if meta.Version == "" && meta.Source == "" && meta.GeneratedAt.IsZero() {
		return nil
	}
	encoded := &metadataJSON{Version: meta.Version, Source: meta.Source}
	if !meta.GeneratedAt.IsZero() {
		encoded.GeneratedAt = meta.GeneratedAt.UTC().Format(time.RFC3339)
	}
	return encoded
}

// DecodeValue converts a tagged wire value into the engine's payload
// representation: bool, string, int64, float64, Enum, or raw JSON.
func DecodeValue(v Value) (any, error) {
	switch v.Type {
	case TypeBool:
		var b bool
		if err := json.Unmarshal(v.Value, &b); err != nil {
			return nil, fmt.Errorf("bool payload: %v", err)
		}
		return b, nil
	case TypeString:
		var s string
		if err := json.Unmarshal(v.Value, &s); err != nil {
			return nil, fmt.Errorf("string payload: %v", err)
		}
		return s, nil
	case TypeInt:
		var n int64
		if err := json.Unmarshal(v.Value, &n); err != nil {
			return nil, fmt.Errorf("int payload: %v", err)
		}
		return n, nil
	case TypeDouble:
		var f float64
		if err := json.Unmarshal(v.Value, &f); err != nil {
			return nil, fmt.Errorf("double payload: %v", err)
		}
		return f, nil
	case TypeEnum:
		var s string
		if err := json.Unmarshal(v.Value, &s); err != nil {
			return nil, fmt.Errorf("enum payload: %v", err)
		}
		return Enum(s), nil
	case TypeData:
		if !json.Valid(v.Value) {
			return nil, errors.New("data payload: invalid JSON")
		}
		return json.RawMessage(bytes.Clone(v.Value)), nil
	default:
		return nil, fmt.Errorf("unknown value type %q", v.Type)
	}
}

// EncodeValue converts an engine payload into its tagged wire form. Plain
// int is accepted alongside int64 as a convenience for hand-built flags.
func EncodeValue(payload any) (Value, error) {
	switch v := payload.(type) {
	case bool:
		return marshalValue(TypeBool, v)
	case string:
		return marshalValue(TypeString, v)
	case int:
		return marshalValue(TypeInt, int64(v))
	case int64:
		return marshalValue(TypeInt, v)
	case float64:
		return marshalValue(TypeDouble, v)
	case Enum:
		return marshalValue(TypeEnum, string(v))
	case json.RawMessage:
		if !json.Valid(v) {
			return Value{}, errors.New("data payload: invalid JSON")
		}
		return Value{Type: TypeData, Value: bytes.Clone(v)}, nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported payload type %T", ErrNotSerializable, payload)
	}
}

func marshalValue(t ValueType, v any) (Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Value{}, err
	}
	return Value{Type: t, Value: raw}, nil
}

func strictUnmarshal(data []byte, dst any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after document")
	}
	return nil
}
