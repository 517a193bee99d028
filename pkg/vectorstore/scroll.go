package vectorstore

import "context"

// DefaultScrollPageSize is the page size used when enumerating a whole
// collection.
const DefaultScrollPageSize = 1000

// IDScroller produces a lazy, finite sequence of point ids from a
// collection, paginating with a cursor carried from the last page. A
// scroller is restartable: constructing one with the cursor of a previous
// scroller resumes where it stopped.
type IDScroller struct {
	store      Store
	collection string
	cursor     Cursor
	pageSize   int
	done       bool
}

// NewIDScroller creates a scroller over collection starting at cursor
// (zero value for the beginning).
func NewIDScroller(store Store, collection string, cursor Cursor) *IDScroller {
	return &IDScroller{
		store:      store,
		collection: collection,
		cursor:     cursor,
		pageSize:   DefaultScrollPageSize,
	}
}

// Next returns the next page of ids, or nil once the collection is
// exhausted.
func (s *IDScroller) Next(ctx context.Context) ([]string, error) {
	if s.done {
		return nil, nil
	}

	points, next, err := s.store.Scroll(ctx, s.collection, s.cursor, s.pageSize, false)
	if err != nil {
		return nil, err
	}

	if len(points) < s.pageSize || next == "" {
		s.done = true
	}
	s.cursor = next

	if len(points) == 0 {
		return nil, nil
	}

	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	return ids, nil
}

// Cursor reports the current scroll position, usable to resume later.
func (s *IDScroller) Cursor() Cursor { return s.cursor }

// All drains the scroller and returns every remaining id.
func (s *IDScroller) All(ctx context.Context) ([]string, error) {
	var all []string
	for {
		ids, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if ids == nil {
			return all, nil
		}
		all = append(all, ids...)
	}
}
