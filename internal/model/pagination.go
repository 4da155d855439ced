package model

// QRLogPage is a single page of generation history.
type QRLogPage struct {
	Data     []*QRLog `json:"data"`
	Total    int      `json:"total"`
	Pages    int      `json:"pages"`
	PageNum  int      `json:"pageNum"`
	PageSize int      `json:"pageSize"`
}
