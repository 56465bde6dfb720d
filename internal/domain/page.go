package domain

const (
	DefaultCurrentPage = 1
	DefaultPageSize    = 12
	MaxPageSize        = 500
	// MaxCurrentPage keeps Offset far from int overflow.
	MaxCurrentPage     = 1_000_000
)

// PageQuery filters and pages proxy selectors.
type PageQuery struct {
	// Name matches selectors whose name contains it. Empty matches all.
	Name        string
	CurrentPage int
	PageSize    int
}

// Normalize fills defaults and clamps the page number and size.
func (q PageQuery) Normalize() PageQuery {
	if q.CurrentPage < 1 {
		q.CurrentPage = DefaultCurrentPage
	}
	if q.CurrentPage > MaxCurrentPage {
		q.CurrentPage = MaxCurrentPage
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

// Offset returns the number of rows to skip for the current page.
func (q PageQuery) Offset() int {
	q = q.Normalize()
	return (q.CurrentPage - 1) * q.PageSize
}

// PageInfo describes the page a Pager holds.
type PageInfo struct {
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
	TotalCount  int `json:"totalCount"`
	TotalPage   int `json:"totalPage"`
}

// Pager is one page of results.
type Pager[T any] struct {
	Page     PageInfo `json:"page"`
	DataList []T      `json:"dataList"`
}

// NewPager builds a pager for q holding items out of total matches.
func NewPager[T any](q PageQuery, total int, items []T) *Pager[T] {
	q = q.Normalize()
	totalPage := 0
	if total > 0 {
		totalPage = (total + q.PageSize - 1) / q.PageSize
	}
	if items == nil {
		items = []T{}
	}
	return &Pager[T]{
		Page: PageInfo{
			CurrentPage: q.CurrentPage,
			PageSize:    q.PageSize,
			TotalCount:  total,
			TotalPage:   totalPage,
		},
		DataList: items,
	}
}
