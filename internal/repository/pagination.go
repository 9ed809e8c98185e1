package repository

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a 1-based page request. Out-of-range values are clamped.
type Page struct {
	Page  int
	Limit int
}

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	n := p.normalize()
	return (n.Page - 1) * n.Limit
}

func (p Page) Size() int {
	return p.normalize().Limit
}

func (p Page) Number() int {
	return p.normalize().Page
}

// TotalPages rounds up; zero items is zero pages
func TotalPages(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
