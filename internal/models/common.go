package models

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
}

// StatusStats counts rows per lifecycle status for list headers.
type StatusStats map[string]int

// Total sums every status bucket.
func (s StatusStats) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

// ListFilter carries the options shared by every list endpoint.
type ListFilter struct {
	Search    string
	Status    string
	OwnerID   string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Normalize clamps paging to the defaults used by every repository.
func (f ListFilter) Normalize() (page, size int) {
	page = f.Page
	if page < 1 {
		page = 1
	}
	size = f.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}

// Paginate builds the response pagination block for total rows.
func (f ListFilter) Paginate(total int) *Pagination {
	page, size := f.Normalize()
	return &Pagination{Page: page, PageSize: size, TotalCount: total}
}
