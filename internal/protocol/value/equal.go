package value

import (
	"bytes"
	"math"
)

type pair struct{ a, b *Value }

// Equal reports structural equality. Named fields compare without regard to
// order; ordered items compare positionally. Cyclic graphs are handled by
// assuming equality for a pair already under comparison.
func Equal(a, b *Value) bool {
	return equal(a, b, make(map[pair]struct{}))
}

func equal(a, b *Value, seen map[pair]struct{}) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Kind != b.Kind {
		return false
	}
	key := pair{a, b}
	if _, ok := seen[key]; ok {
		return true
	}
	seen[key] = struct{}{}

	switch a.Kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber:
		if math.IsNaN(a.Number) && math.IsNaN(b.Number) {
			return true
		}
		return a.Number == b.Number
	case KindInteger:
		return a.Int == b.Int
	case KindString, KindXML:
		return a.Str == b.Str
	case KindDate:
		return Millis(a.Time) == Millis(b.Time)
	case KindByteArray:
		return bytes.Equal(a.Bytes, b.Bytes)
	case KindArray:
		if len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if !equal(a.Items[i], b.Items[i], seen) {
				return false
			}
		}
		return fieldsEqual(a, b, seen)
	case KindMap:
		return fieldsEqual(a, b, seen)
	case KindObject:
		return a.Class == b.Class && fieldsEqual(a, b, seen)
	}
	return false
}

func fieldsEqual(a, b *Value, seen map[pair]struct{}) bool {
	if len(a.Fields) != len(b.Fields) {
		return false
	}
	for _, f := range a.Fields {
		other, ok := b.Get(f.Name)
		if !ok || !equal(f.Value, other, seen) {
			return false
		}
	}
	return true
}
