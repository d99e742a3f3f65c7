package engine

import "slices"

// OwnershipTagKey is the tag written onto every resource we create.
const OwnershipTagKey = "managed-by"

// OwnershipTagValue is the value written by this version of shipyard.
const OwnershipTagValue = "shipyard-v1"

// Ownership decides whether an existing resource may be mutated.
type Ownership struct {
	// Recognized lists every managed-by value accepted as ours, including
	// values written by older releases.
	Recognized []string
}

// DefaultOwnership recognizes only the current tag value.
func DefaultOwnership() Ownership {
	return Ownership{Recognized: []string{OwnershipTagValue}}
}

// Extend returns a copy that also recognizes extra values.
func (o Ownership) Extend(extra ...string) Ownership {
	out := Ownership{Recognized: slices.Clone(o.Recognized)}
	for _, v := range extra {
		if v != "" && !slices.Contains(out.Recognized, v) {
			out.Recognized = append(out.Recognized, v)
		}
	}
	return out
}

// Owns reports whether tags carry a recognized ownership value.
func (o Ownership) Owns(tags map[string]string) bool {
	v, ok := tags[OwnershipTagKey]
	if !ok {
		return false
	}
	return slices.Contains(o.Recognized, v)
}

// Check returns an ownership error naming remoteID when tags are not ours.
func (o Ownership) Check(kind, remoteID string, tags map[string]string) error {
	if o.Owns(tags) {
		return nil
	}
	return OwnershipError(kind, remoteID, tags[OwnershipTagKey])
}

// Tags returns the tag set written onto new resources.
func (o Ownership) Tags() map[string]string {
	return map[string]string{OwnershipTagKey: OwnershipTagValue}
}
