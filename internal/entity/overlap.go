package entity

import "log/slog"

// Overlap is a pair of entities whose token ranges intersect.
type Overlap[T any] struct {
	A Entity[T]
	B Entity[T]
}

// Overlaps compares every entity with every other one and returns each
// intersecting pair once, in input order.
func Overlaps[T any](entities []Entity[T]) []Overlap[T] {
	var out []Overlap[T]
	for i, a := range entities {
		for _, b := range entities[i+1:] {
			if a.Overlaps(b) {
				out = append(out, Overlap[T]{A: a, B: b})
			}
		}
	}
	return out
}

// HasOverlap reports whether any two entities overlap, logging a warning
// for each offending pair. It never mutates or discards entities; what to
// do about overlaps is up to the caller (see Resolve).
func HasOverlap[T any](log *slog.Logger, entities []Entity[T]) bool {
	pairs := Overlaps(entities)
	if log != nil {
		for _, p := range pairs {
			log.Warn("entities overlap",
				"entity_id", p.A.ID,
				"start", p.A.StartTokenIndex,
				"end", p.A.End(),
				"other_id", p.B.ID,
				"other_start", p.B.StartTokenIndex,
				"other_end", p.B.End(),
			)
		}
	}
	return len(pairs) > 0
}
