package domain

// Pagination defaults
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a normalized page request
type Page struct {
	Page     int
	PageSize int
}

// NewPage clamps page and size into valid bounds
func NewPage(page, size int) Page {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Page: page, PageSize: size}
}

// Offset returns the row offset of the page
func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}
