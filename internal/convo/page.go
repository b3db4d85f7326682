package convo

// Page is a bounded offset window over an ordered index.
type Page[T any] struct {
	Items   []T
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}

// NewPage builds a page, trimming items to limit and deriving HasMore so that
// len(Items) <= Limit and HasMore == (Offset+len(Items) < Total) always hold.
func NewPage[T any](items []T, total, limit, offset int) Page[T] {
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	if len(items) > limit {
		items = items[:limit]
	}
	if len(items) > 0 && total < offset+len(items) {
		total = offset + len(items)
	}
	return Page[T]{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(items) < total,
	}
}

// EmptyPage is the page returned when a listing failed.
func EmptyPage[T any](limit, offset int) Page[T] {
	return NewPage[T](nil, 0, limit, offset)
}
