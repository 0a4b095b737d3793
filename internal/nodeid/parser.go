package nodeid

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	addressRegex = regexp.MustCompile(`^(step|resource)\.([A-Za-z0-9_-]+)\.([A-Za-z0-9_-]+)(\[("(?:[^"\\]|\\.)*")\])?$`)
	refRegex     = regexp.MustCompile(`^([A-Za-z0-9_-]+)\.([A-Za-z0-9_-]+)(\[("(?:[^"\\]|\\.)*")\])?$`)
)

// Parse creates a new Address by parsing its canonical string representation.
func Parse(rawID string) (*Address, error) {
	if rawID == "" {
		return nil, fmt.Errorf("identifier cannot be empty")
	}
	m := addressRegex.FindStringSubmatch(rawID)
	if m == nil {
		return nil, fmt.Errorf("invalid node identifier: %q", rawID)
	}
	return build(m[1], m[2], m[3], m[5], m[4] != "")
}

// ParseRef parses the short form used in `depends_on`, which omits the kind:
// `<type>.<name>` or `<type>.<name>["key"]`. The returned address has an
// empty Kind; callers decide whether it names a step or a resource.
func ParseRef(raw string) (*Address, error) {
	if raw == "" {
		return nil, fmt.Errorf("reference cannot be empty")
	}
	m := refRegex.FindStringSubmatch(raw)
	if m == nil {
		return nil, fmt.Errorf("invalid reference: %q", raw)
	}
	return build("", m[1], m[2], m[4], m[3] != "")
}

func build(kind, typ, name, quotedKey string, keyed bool) (*Address, error) {
	addr := New(kind, typ, name)
	if !keyed {
		return addr, nil
	}
	key, err := strconv.Unquote(quotedKey)
	if err != nil {
		return nil, fmt.Errorf("invalid instance key %s: %w", quotedKey, err)
	}
	return addr.WithKey(key), nil
}
