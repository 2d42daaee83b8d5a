package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"github.com/telo-ai/server/pkg/autorag"
	"github.com/telo-ai/server/pkg/storage"
)

// Searcher is the managed search index.
type Searcher interface {
	Search(ctx context.Context, req autorag.SearchRequest) (*autorag.SearchResponse, error)
}

// ===================================
// Document Search Tool
// ===================================

type DocumentSearchInput struct {
	Query string `json:"query"`
}

func (in *DocumentSearchInput) Validate() error { return requireText("query", in.Query) }

type LinkedDocument struct {
	autorag.Document
	Link string `json:"link"`
}

type DocumentSearchOutput struct {
	Object      string           `json:"object,omitempty"`
	SearchQuery string           `json:"search_query"`
	Data        []LinkedDocument `json:"data"`
	HasMore     bool             `json:"has_more"`
	NextPage    *string          `json:"next_page"`
}

func newDocumentSearchTool(s Searcher, publicBaseURL string) tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolDocumentSearch,
			Desc: "Search for relevant documents based on keywords or phrases. Every result carries a public link to the document.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "The search query to find relevant documents",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *DocumentSearchInput) (*DocumentSearchOutput, error) {
			resp, err := s.Search(ctx, autorag.SearchRequest{Query: in.Query})
			if err != nil {
				return nil, err
			}
			out := &DocumentSearchOutput{
				Object:      resp.Object,
				SearchQuery: resp.SearchQuery,
				Data:        make([]LinkedDocument, 0, len(resp.Data)),
				HasMore:     resp.HasMore,
				NextPage:    resp.NextPage,
			}
			for _, d := range resp.Data {
				out.Data = append(out.Data, LinkedDocument{Document: d, Link: storage.PublicURL(publicBaseURL, d.Filename)})
			}
			return out, nil
		},
	)
}

// ===================================
// Document Content Search Tool
// ===================================

type DocumentContentSearchInput struct {
	Query    string `json:"query"`
	Filename string `json:"filename"`
}

func (in *DocumentContentSearchInput) Validate() error {
	if err := requireText("query", in.Query); err != nil {
		return err
	}
	return requireText("filename", in.Filename)
}

func newDocumentContentSearchTool(s Searcher) tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolDocumentContentSearch,
			Desc: "Search for content in a specific document based on user query",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "The search query to find content in a specific document",
					Required: true,
				},
				"filename": {
					Type:     schema.String,
					Desc:     "The filename to search in, including extension",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *DocumentContentSearchInput) (*autorag.SearchResponse, error) {
			return s.Search(ctx, autorag.SearchRequest{
				Query:   in.Query,
				Filters: autorag.EqFilter("filename", in.Filename),
			})
		},
	)
}

// ===================================
// Document Batch Content Search Tool
// ===================================

type DocumentBatchContentSearchInput struct {
	Query     string   `json:"query"`
	Filenames []string `json:"filenames"`
}

func (in *DocumentBatchContentSearchInput) Validate() error {
	if err := requireText("query", in.Query); err != nil {
		return err
	}
	if n := len(in.Filenames); n < 1 || n > MaxBatchDocuments {
		return fmt.Errorf("filenames must contain between 1 and %d entries, got %d", MaxBatchDocuments, n)
	}
	for i, f := range in.Filenames {
		if err := requireText(fmt.Sprintf("filenames[%d]", i), f); err != nil {
			return err
		}
	}
	return nil
}

type BatchItem struct {
	Filename    string             `json:"filename"`
	Success     bool               `json:"success"`
	Data        []autorag.Document `json:"data"`
	SearchQuery string             `json:"search_query,omitempty"`
	Error       string             `json:"error,omitempty"`
}

type DocumentBatchContentSearchOutput struct {
	Query               string      `json:"query"`
	TotalDocuments      int         `json:"totalDocuments"`
	SuccessfulDocuments int         `json:"successfulDocuments"`
	TotalChunks         int         `json:"totalChunks"`
	Results             []BatchItem `json:"results"`
	Summary             string      `json:"summary"`
}

func newDocumentBatchContentSearchTool(s Searcher) tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolDocumentBatchContentSearch,
			Desc: "Search content in multiple documents simultaneously (up to 5). Returns aggregated results from all specified documents.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "Search query for content across documents",
					Required: true,
				},
				"filenames": {
					Type:     schema.Array,
					Desc:     "Array of filenames to search (max 5, most relevant first)",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *DocumentBatchContentSearchInput) (*DocumentBatchContentSearchOutput, error) {
			return batchSearch(ctx, s, in.Query, in.Filenames), nil
		},
	)
}

// batchSearch queries every filename concurrently. A failing document is
// reported in its slot and never fails the batch.
func batchSearch(ctx context.Context, s Searcher, query string, filenames []string) *DocumentBatchContentSearchOutput {
	results := make([]BatchItem, len(filenames))

	var g errgroup.Group
	g.SetLimit(MaxBatchDocuments)
	for i, filename := range filenames {
		g.Go(func() error {
			item := BatchItem{Filename: filename, Data: []autorag.Document{}}
			resp, err := s.Search(ctx, autorag.SearchRequest{
				Query:   query,
				Filters: autorag.EqFilter("filename", filename),
			})
			if err != nil {
				item.Error = err.Error()
			} else {
				item.Success = true
				item.Data = resp.Data
				item.SearchQuery = resp.SearchQuery
			}
			results[i] = item
			return nil
		})
	}
	_ = g.Wait()

	out := &DocumentBatchContentSearchOutput{
		Query:          query,
		TotalDocuments: len(filenames),
		Results:        results,
	}
	for _, r := range results {
		if r.Success {
			out.SuccessfulDocuments++
			out.TotalChunks += len(r.Data)
		}
	}
	out.Summary = fmt.Sprintf("Retrieved %d chunks from %d/%d documents.",
		out.TotalChunks, out.SuccessfulDocuments, out.TotalDocuments)
	return out
}
