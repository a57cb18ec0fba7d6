package pricing

import (
	"bytes"
	"encoding/json"
)

// Eligibility is a three-state family discount signal: unset, or forced to a value.
type Eligibility struct {
	set   bool
	value bool
}

// Unset returns an eligibility signal carrying no decision.
func Unset() Eligibility { return Eligibility{} }

// Forced returns an eligibility signal pinned to v.
func Forced(v bool) Eligibility { return Eligibility{set: true, value: v} }

// FromPtr converts an optional bool into an Eligibility.
func FromPtr(v *bool) Eligibility {
	if v == nil {
		return Unset()
	}
	return Forced(*v)
}

// IsSet reports whether a value has been pinned.
func (e Eligibility) IsSet() bool { return e.set }

// Value returns the pinned value and whether one exists.
func (e Eligibility) Value() (bool, bool) { return e.value, e.set }

// Ptr converts the signal back into an optional bool.
func (e Eligibility) Ptr() *bool {
	if !e.set {
		return nil
	}
	v := e.value
	return &v
}

// MarshalJSON encodes an unset signal as null.
func (e Eligibility) MarshalJSON() ([]byte, error) {
	if !e.set {
		return []byte("null"), nil
	}
	return json.Marshal(e.value)
}

// UnmarshalJSON accepts null or a boolean.
func (e *Eligibility) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*e = Unset()
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = Forced(v)
	return nil
}

// ResolveEligibility decides whether a student counts as a second-or-later
// dancer in the family. A manual override wins over the explicit flag, which
// wins over auto-detection; auto-detection grants eligibility when the cart
// already holds at least one other student.
func ResolveEligibility(explicit, override Eligibility, cartSize int) bool {
	switch {
	case override.set:
		return override.value
	case explicit.set:
		return explicit.value
	default:
		return cartSize >= 1
	}
}
