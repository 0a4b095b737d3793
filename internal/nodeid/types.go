package nodeid

// Kinds of addressable blocks.
const (
	KindStep     = "step"
	KindResource = "resource"
)

// Address is the structured representation of a unique node identifier.
type Address struct {
	Kind string
	Type string
	Name string
	// Key is the for_each instance key. It is only meaningful when Keyed is true.
	Key   string
	Keyed bool
}

// New returns an unkeyed address.
func New(kind, typ, name string) *Address {
	return &Address{Kind: kind, Type: typ, Name: name}
}

// WithKey returns a copy of the address pointing at a single instance.
func (a *Address) WithKey(key string) *Address {
	cp := *a
	cp.Key = key
	cp.Keyed = true
	return &cp
}

// Base returns the address with any instance key stripped.
func (a *Address) Base() *Address {
	return New(a.Kind, a.Type, a.Name)
}
