package wire

import (
	"errors"
	"fmt"

	"github.com/gatekeep/gatekeep"
)

// ErrInvalidContext reports a malformed wire context.
var ErrInvalidContext = errors.New("invalid context")

// ContextJSON is the wire form of an evaluation context.
type ContextJSON struct {
	Locale   string            `json:"locale,omitempty"`
	Platform string            `json:"platform,omitempty"`
	Version  string            `json:"version,omitempty"`
	StableID string            `json:"stable_id,omitempty"`
	Axes     map[string]string `json:"axes,omitempty"`
}

// DecodeContext converts a wire context into an evaluation context. An
// absent version is treated as 0.0.0; the stable id is normalized.
func DecodeContext(raw ContextJSON) (gatekeep.Context, error) {
	ctx := gatekeep.Context{
		Locale:   raw.Locale,
		Platform: raw.Platform,
		StableID: gatekeep.NewStableID(raw.StableID),
		Axes:     raw.Axes,
	}
	if raw.Version != "" {
		v, err := gatekeep.ParseVersion(raw.Version)
		if err != nil {
			return gatekeep.Context{}, fmt.Errorf("%w: version: %v", ErrInvalidContext, err)
		}
		ctx.Version = v
	}
	return ctx, nil
}

// EncodeContext converts an evaluation context into its wire form.
func EncodeContext(ctx gatekeep.Context) ContextJSON {
	return ContextJSON{
		Locale:   ctx.Locale,
		Platform: ctx.Platform,
		Version:  ctx.Version.String(),
		StableID: ctx.StableID.Hex(),
		Axes:     ctx.Axes,
	}
}
