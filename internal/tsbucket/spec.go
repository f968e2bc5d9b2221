// Package tsbucket reconstructs individual measurement documents from the
// columnar bucket representation used for time-series storage. A bucket
// groups many measurements sharing one schema window: a control block, an
// optional bucket-wide meta value, and per-field columns keyed by decimal row
// index. The Unpacker walks one bucket and materializes one flattened
// document per row, applying an include- or exclude-list projection.
package tsbucket

// Behavior selects how a Spec's field set is interpreted.
type Behavior int

const (
	// Include treats the field set as an allow-list.
	Include Behavior = iota
	// Exclude treats the field set as a deny-list.
	Exclude
)

func (b Behavior) String() string {
	if b == Include {
		return "include"
	}
	return "exclude"
}

// Spec is the projection configuration for unpacking: the bucket's time field
// name, the optional meta field name (empty means the schema has no meta),
// and the field set the Behavior applies to.
type Spec struct {
	TimeField string
	MetaField string
	FieldSet  map[string]struct{}
}

// NewSpec builds a Spec from a list of field names.
func NewSpec(timeField, metaField string, fields ...string) Spec {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return Spec{TimeField: timeField, MetaField: metaField, FieldSet: set}
}

// Clone returns a spec sharing nothing with the receiver. Unpackers resolve
// meta by mutating their spec's field set, so a spec handed to more than one
// unpacker must be cloned first.
func (s Spec) Clone() Spec {
	set := make(map[string]struct{}, len(s.FieldSet))
	for f := range s.FieldSet {
		set[f] = struct{}{}
	}
	return Spec{TimeField: s.TimeField, MetaField: s.MetaField, FieldSet: set}
}

// ResolveMeta strips the meta field name from the field set and reports
// whether the meta value belongs in unpacked measurements: under Include when
// the set named it, under Exclude when the set did not. Without a configured
// meta field it reports false and leaves the set untouched. Meta is resolved
// once here because it materializes as a single bucket-wide value, not as a
// per-row column lookup.
func (s *Spec) ResolveMeta(behavior Behavior) bool {
	if s.MetaField == "" {
		return false
	}
	_, inSet := s.FieldSet[s.MetaField]
	delete(s.FieldSet, s.MetaField)
	return inSet == (behavior == Include)
}

// IncludesTime reports whether the time field belongs in unpacked
// measurements under the given behavior.
func (s *Spec) IncludesTime(behavior Behavior) bool {
	return s.IncludesField(s.TimeField, behavior)
}

// IncludesField reports whether the named field belongs in unpacked
// measurements: set membership under Include, set absence under Exclude.
func (s *Spec) IncludesField(name string, behavior Behavior) bool {
	_, inSet := s.FieldSet[name]
	return inSet == (behavior == Include)
}
