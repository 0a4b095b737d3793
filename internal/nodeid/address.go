package nodeid

import (
	"strconv"
	"strings"
)

// String serializes the Address into its canonical string representation.
func (a *Address) String() string {
	if a == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(a.Kind)
	sb.WriteByte('.')
	sb.WriteString(a.Type)
	sb.WriteByte('.')
	sb.WriteString(a.Name)
	if a.Keyed {
		sb.WriteByte('[')
		sb.WriteString(strconv.Quote(a.Key))
		sb.WriteByte(']')
	}
	return sb.String()
}

// Equal checks for equality between two Address pointers.
func (a *Address) Equal(other *Address) bool {
	if a == nil || other == nil {
		return a == other
	}
	return *a == *other
}
