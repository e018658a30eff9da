package utterance

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JoinKind identifies the shape a joined relation arrived in.
type JoinKind int

const (
	// JoinAbsent is a missing or null relation.
	JoinAbsent JoinKind = iota
	// JoinOne is a relation encoded as a single object.
	JoinOne
	// JoinMany is a relation encoded as an array.
	JoinMany
)

// Join is a joined relation that may be absent, a single value, or a list.
// The zero value is absent.
type Join[T any] struct {
	kind JoinKind
	one  T
	many []T
}

// One returns a Join holding a single value.
func One[T any](v T) Join[T] {
	return Join[T]{kind: JoinOne, one: v}
}

// Many returns a Join holding a list of values.
func Many[T any](vs []T) Join[T] {
	return Join[T]{kind: JoinMany, many: vs}
}

// Kind reports the encoding the relation arrived in.
func (j Join[T]) Kind() JoinKind {
	return j.kind
}

// First collapses the relation to its first value.
func (j Join[T]) First() (T, bool) {
	var zero T
	switch j.kind {
	case JoinOne:
		return j.one, true
	case JoinMany:
		if len(j.many) > 0 {
			return j.many[0], true
		}
	}
	return zero, false
}

// All returns every value in the relation; an object yields one element.
func (j Join[T]) All() []T {
	switch j.kind {
	case JoinOne:
		return []T{j.one}
	case JoinMany:
		if len(j.many) == 0 {
			return nil
		}
		out := make([]T, len(j.many))
		copy(out, j.many)
		return out
	}
	return nil
}

// UnmarshalJSON accepts null, an object, or an array.
func (j *Join[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*j = Join[T]{}
		return nil
	}
	switch trimmed[0] {
	case '[':
		var many []T
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return fmt.Errorf("decode joined list: %w", err)
		}
		*j = Many(many)
	case '{':
		var one T
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return fmt.Errorf("decode joined object: %w", err)
		}
		*j = One(one)
	default:
		return fmt.Errorf("decode joined relation: unexpected %q", trimmed[0])
	}
	return nil
}

// MarshalJSON emits the relation in the shape it was decoded from.
func (j Join[T]) MarshalJSON() ([]byte, error) {
	switch j.kind {
	case JoinOne:
		return json.Marshal(j.one)
	case JoinMany:
		if j.many == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(j.many)
	}
	return []byte("null"), nil
}
