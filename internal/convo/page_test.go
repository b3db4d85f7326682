package convo

import "testing"

func TestNewPageInvariant(t *testing.T) {
	tests := []struct {
		name        string
		items       int
		total       int
		limit       int
		offset      int
		wantLen     int
		wantHasMore bool
	}{
		{"first page of many", 20, 45, 20, 0, 20, true},
		{"last partial page", 5, 45, 20, 40, 5, false},
		{"exact fit", 20, 40, 20, 20, 20, false},
		{"past the end", 0, 10, 20, 40, 0, false},
		{"items trimmed to limit", 30, 30, 20, 0, 20, true},
		{"empty", 0, 0, 20, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]int, tt.items)
			p := NewPage(items, tt.total, tt.limit, tt.offset)
			if len(p.Items) != tt.wantLen {
				t.Errorf("len(Items) = %d, want %d", len(p.Items), tt.wantLen)
			}
			if p.HasMore != tt.wantHasMore {
				t.Errorf("HasMore = %v, want %v", p.HasMore, tt.wantHasMore)
			}
			if len(p.Items) > p.Limit {
				t.Errorf("len(Items) %d > Limit %d", len(p.Items), p.Limit)
			}
			if p.HasMore != (p.Offset+len(p.Items) < p.Total) {
				t.Errorf("HasMore disagrees with offset/total: %+v", p)
			}
		})
	}
}
