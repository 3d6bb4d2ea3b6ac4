package page

// Param 分页参数，page_num 从 1 开始
type Param struct {
	PageNum    int `form:"page_num" json:"page_num"`
	NumPerPage int `form:"num_per_page" json:"num_per_page"`
}

// Offset 当前页第一条记录的偏移量
func (p Param) Offset() int {
	if p.PageNum < 1 || p.NumPerPage < 1 {
		return 0
	}
	return (p.PageNum - 1) * p.NumPerPage
}

// Bean 分页结果
type Bean[T any] struct {
	CurrentPage int   `json:"current_page"`
	NumPerPage  int   `json:"num_per_page"`
	TotalCount  int64 `json:"total_count"`
	PageCount   int   `json:"page_count"`
	RecordList  []T   `json:"record_list"`
}

// NewBean 用已经校正过的分页参数组装结果
func NewBean[T any](p Param, total int64, list []T) *Bean[T] {
	if list == nil {
		list = []T{}
	}
	return &Bean[T]{
		CurrentPage: p.PageNum,
		NumPerPage:  p.NumPerPage,
		TotalCount:  total,
		PageCount:   PageCount(total, p.NumPerPage),
		RecordList:  list,
	}
}

// PageCount 总页数
func PageCount(total int64, numPerPage int) int {
	if total <= 0 || numPerPage <= 0 {
		return 0
	}
	return int((total + int64(numPerPage) - 1) / int64(numPerPage))
}

// CheckNumPerPage 每页条数不合法时用默认值，超过上限时截断
func CheckNumPerPage(numPerPage, def, max int) int {
	if numPerPage < 1 {
		numPerPage = def
	}
	if max > 0 && numPerPage > max {
		numPerPage = max
	}
	if numPerPage < 1 {
		numPerPage = 1
	}
	return numPerPage
}

// CheckCurrentPage 把页码限制在 [1, 总页数] 内，没有数据时为 1
func CheckCurrentPage(total int64, numPerPage, pageNum int) int {
	pageCount := PageCount(total, numPerPage)
	if pageNum > pageCount {
		pageNum = pageCount
	}
	if pageNum < 1 {
		pageNum = 1
	}
	return pageNum
}
