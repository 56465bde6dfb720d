package domain

import "testing"

func TestPageQueryNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   PageQuery
		want PageQuery
	}{
		{"defaults", PageQuery{}, PageQuery{CurrentPage: 1, PageSize: 12}},
		{"negative", PageQuery{CurrentPage: -3, PageSize: -1}, PageQuery{CurrentPage: 1, PageSize: 12}},
		{"clamped", PageQuery{CurrentPage: 2, PageSize: 10000}, PageQuery{CurrentPage: 2, PageSize: MaxPageSize}},
		{"kept", PageQuery{Name: "svc", CurrentPage: 3, PageSize: 20}, PageQuery{Name: "svc", CurrentPage: 3, PageSize: 20}},
		{"huge page", PageQuery{CurrentPage: 1 << 62, PageSize: MaxPageSize}, PageQuery{CurrentPage: MaxCurrentPage, PageSize: MaxPageSize}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalize(); got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPageQueryOffset(t *testing.T) {
	if got := (PageQuery{CurrentPage: 3, PageSize: 10}).Offset(); got != 20 {
		t.Errorf("Offset() = %d, want 20", got)
	}
	if got := (PageQuery{}).Offset(); got != 0 {
		t.Errorf("Offset() of zero query = %d, want 0", got)
	}
	if got := (PageQuery{CurrentPage: 1 << 62, PageSize: 10}).Offset(); got != (MaxCurrentPage-1)*10 {
		t.Errorf("Offset() of huge page = %d, want %d", got, (MaxCurrentPage-1)*10)
	}
}

func TestNewPager(t *testing.T) {
	p := NewPager[string](PageQuery{CurrentPage: 1, PageSize: 10}, 25, nil)
	if p.Page.TotalPage != 3 {
		t.Errorf("TotalPage = %d, want 3", p.Page.TotalPage)
	}
	if p.DataList == nil {
		t.Error("DataList should never be nil")
	}

	empty := NewPager[string](PageQuery{}, 0, nil)
	if empty.Page.TotalPage != 0 {
		t.Errorf("TotalPage of empty result = %d, want 0", empty.Page.TotalPage)
	}
}
