package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrSpanOutOfRange marks an entity whose range does not lie within the token stream.
	ErrSpanOutOfRange = errors.New("span out of range")
	// ErrOverlapRejected marks an entity that overlaps an earlier-starting accepted entity.
	ErrOverlapRejected = errors.New("overlap rejected")
	// ErrDuplicateID marks a second entity reusing an id.
	ErrDuplicateID = errors.New("duplicate entity id")
)

// RejectedError describes why Resolve refused an entity.
type RejectedError struct {
	ID         string
	Start      int
	Length     int
	ConflictID string // set for overlap and duplicate rejections
	Err        error
}

func (e *RejectedError) Error() string {
	if e.ConflictID != "" {
		return fmt.Sprintf("entity %q [%d,%d): %s (conflicts with %q)", e.ID, e.Start, e.Start+e.Length, e.Err, e.ConflictID)
	}
	return fmt.Sprintf("entity %q [%d,%d): %s", e.ID, e.Start, e.Start+e.Length, e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// Resolve applies the entity acceptance policy against a token stream
// holding count tokens numbered from first.
//
// Entities are considered in StartTokenIndex order (stable for ties). An
// entity is rejected when its range is empty or leaves the stream, when its
// id was already accepted, or when it overlaps an accepted entity that
// started no later than it. The input slice is not modified.
func Resolve[T any](entities []Entity[T], first, count int) ([]Entity[T], []*RejectedError) {
	var accepted []Entity[T]
	var rejected []*RejectedError
	byID := make(map[string]bool)

	reject := func(e Entity[T], conflict string, err error) {
		rejected = append(rejected, &RejectedError{
			ID:         e.ID,
			Start:      e.StartTokenIndex,
			Length:     e.TokenLength,
			ConflictID: conflict,
			Err:        err,
		})
	}

	for _, e := range SortByStart(entities) {
		if !inRange(e, first, count) {
			reject(e, "", ErrSpanOutOfRange)
			continue
		}
		if e.ID != "" && byID[e.ID] {
			reject(e, e.ID, ErrDuplicateID)
			continue
		}
		// Accepted entities are sorted and disjoint, so only the last can reach e.
		if n := len(accepted); n > 0 && accepted[n-1].Overlaps(e) {
			reject(e, accepted[n-1].ID, ErrOverlapRejected)
			continue
		}
		accepted = append(accepted, e)
		byID[e.ID] = true
	}

	return accepted, rejected
}

// inRange reports whether e lies within [first, first+count). The length is
// compared against the room left after the start so huge lengths cannot
// overflow.
func inRange[T any](e Entity[T], first, count int) bool {
	end := first + count
	return e.TokenLength >= 1 &&
		e.StartTokenIndex >= first &&
		e.StartTokenIndex < end &&
		e.TokenLength <= end-e.StartTokenIndex
}
