package model

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// PageQuery 列表查询的页码参数（从 1 开始）。
type PageQuery struct {
	Page  int
	Limit int
}

// Normalize 越界值回落到默认值。
func (q PageQuery) Normalize() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}
	return q
}

func (q PageQuery) Offset() int { return (q.Page - 1) * q.Limit }

// Pagination 所有列表接口统一返回的分页信息。
type Pagination struct {
	Page  int   `json:"page"`
	Pages int   `json:"pages"`
	Total int64 `json:"total"`
	Limit int   `json:"limit"`
}

func NewPagination(q PageQuery, total int64) Pagination {
	q = q.Normalize()
	pages := int((total + int64(q.Limit) - 1) / int64(q.Limit))
	return Pagination{Page: q.Page, Pages: pages, Total: total, Limit: q.Limit}
}
