package autorag

// Filter is an attribute comparison applied to a search.
type Filter struct {
	Type  string `json:"type"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// EqFilter matches documents whose attribute key equals value.
func EqFilter(key, value string) *Filter {
	return &Filter{Type: "eq", Key: key, Value: value}
}

type SearchRequest struct {
	Query         string  `json:"query"`
	Filters       *Filter `json:"filters,omitempty"`
	MaxNumResults int     `json:"max_num_results,omitempty"`
	RewriteQuery  bool    `json:"rewrite_query"`
}

type ContentChunk struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

type Document struct {
	FileID     string         `json:"file_id"`
	Filename   string         `json:"filename"`
	Score      float64        `json:"score"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Content    []ContentChunk `json:"content"`
}

type SearchResponse struct {
	Object      string     `json:"object"`
	SearchQuery string     `json:"search_query"`
	Data        []Document `json:"data"`
	HasMore     bool       `json:"has_more"`
	NextPage    *string    `json:"next_page"`
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool            `json:"success"`
	Errors  []apiMessage    `json:"errors"`
	Result  *SearchResponse `json:"result"`
}
