// Package groundtruth loads the static expected-values file that drives the
// row-level quality checks. The file is a single JSON object mapping a row id
// to an object of column values:
//
//	{
//	  "1": {"x": 7, "y": 5, "month": "mar", "area": 0},
//	  "2": {"x": 7, "y": 4, "month": "oct", "area": 0}
//	}
package groundtruth

import (
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

var (
	// ErrInvalid is returned when the document is not a JSON object of objects.
	ErrInvalid = errors.New("invalid ground truth")
	// ErrDuplicateID is returned when the same row id appears twice.
	ErrDuplicateID = errors.New("duplicate ground truth id")
)

// Record is the expected column values for one row.
type Record struct {
	ID     string
	Values cty.Value
}

// Load reads and parses the ground truth file at path.
func Load(path string) ([]Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ground truth: %w", err)
	}
	records, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Parse decodes a ground truth document. Records keep their file order.
func Parse(raw []byte) ([]Record, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalid)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: top level must be an object keyed by row id", ErrInvalid)
	}

	var (
		records []Record
		seen    = make(map[string]struct{})
		failure error
	)
	doc.ForEach(func(key, value gjson.Result) bool {
		id := key.String()
		if _, dup := seen[id]; dup {
			failure = fmt.Errorf("%w: %q", ErrDuplicateID, id)
			return false
		}
		seen[id] = struct{}{}

		if !value.IsObject() {
			failure = fmt.Errorf("%w: record %q must be an object, got %s", ErrInvalid, id, value.Type)
			return false
		}
		v, err := decodeRecord(value.Raw)
		if err != nil {
			failure = fmt.Errorf("%w: record %q: %v", ErrInvalid, id, err)
			return false
		}
		records = append(records, Record{ID: id, Values: v})
		return true
	})
	if failure != nil {
		return nil, failure
	}
	return records, nil
}

func decodeRecord(raw string) (cty.Value, error) {
	ty, err := ctyjson.ImpliedType([]byte(raw))
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal([]byte(raw), ty)
}

// ToCty returns the records as an object keyed by id, suitable for for_each.
func ToCty(records []Record) cty.Value {
	if len(records) == 0 {
		return cty.EmptyObjectVal
	}
	attrs := make(map[string]cty.Value, len(records))
	for _, r := range records {
		attrs[r.ID] = r.Values
	}
	return cty.ObjectVal(attrs)
}
