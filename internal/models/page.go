package models

// Page is one page of gallery results.
type Page struct {
	Items      []*Post  `json:"items"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
	Query      string   `json:"query,omitempty"`
	Ratings    []string `json:"ratings"`
	// Filtered is true when the page was filtered and sliced in memory.
	Filtered  bool  `json:"filtered"`
	QueryTime int64 `json:"query_time_ms"`
}

// TotalPages returns max(1, ceil(total/pageSize)). A non-positive pageSize yields 1.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}
