package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ChangeSet captures which fields differ between two states of a record.
type ChangeSet struct {
	fields map[string]struct{}
}

// Changed reports whether the named field differs.
func (c ChangeSet) Changed(field string) bool {
	_, ok := c.fields[field]
	return ok
}

// Empty reports whether no field differs.
func (c ChangeSet) Empty() bool {
	return len(c.fields) == 0
}

// Names returns the changed field names in sorted order.
func (c ChangeSet) Names() []string {
	names := make([]string, 0, len(c.fields))
	for name := range c.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CompareFields computes the set of field names whose values differ between
// two field maps. Fields present on only one side count as changed.
func CompareFields(old, new map[string]any) ChangeSet {
	changed := make(map[string]struct{})
	for name, value := range new {
		before, ok := old[name]
		if !ok || canonicalValue(before) != canonicalValue(value) {
			changed[name] = struct{}{}
		}
	}
	for name := range old {
		if _, ok := new[name]; !ok {
			changed[name] = struct{}{}
		}
	}
	return ChangeSet{fields: changed}
}

// Altered implements the snapshot-qualifying change test. With an empty watch
// list any change qualifies. With a watch list, at least one watched field
// must appear in the change set.
func Altered(old, new map[string]any, watch []string) bool {
	changes := CompareFields(old, new)
	if len(watch) == 0 {
		return !changes.Empty()
	}
	for _, field := range watch {
		if changes.Changed(field) {
			return true
		}
	}
	return false
}

// maxExactFloatInt is the largest integer magnitude float64 represents
// exactly. Integers beyond it must not be canonicalized through float64 or
// distinct values collapse onto the same string.
const maxExactFloatInt = int64(1) << 53

// canonicalInt keeps small integers comparable with their float
// representations and formats everything past float64's exact range as the
// integer it is.
func canonicalInt(v int64) string {
	if v >= -maxExactFloatInt && v <= maxExactFloatInt {
		return fmt.Sprintf("n:%v", float64(v))
	}
	return "i:" + strconv.FormatInt(v, 10)
}

// canonicalValue renders a field value into a deterministic string so values
// that round-tripped through JSONB or the driver still compare equal.
func canonicalValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return "s:" + v
	case []byte:
		return "s:" + string(v)
	case time.Time:
		return "t:" + v.UTC().Format(time.RFC3339Nano)
	case bool:
		if v {
			return "b:true"
		}
		return "b:false"
	case int:
		return canonicalInt(int64(v))
	case int32:
		return canonicalInt(int64(v))
	case int64:
		return canonicalInt(v)
	case float32:
		return fmt.Sprintf("n:%v", float64(v))
	case float64:
		return fmt.Sprintf("n:%v", v)
	case json.Number:
		if parsed, err := v.Int64(); err == nil {
			return canonicalInt(parsed)
		}
		if parsed, err := v.Float64(); err == nil {
			return fmt.Sprintf("n:%v", parsed)
		}
		return "n:" + v.String()
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("v:%v", v)
		}
		return "j:" + string(encoded)
	}
}
