package tools

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// DocumentReader returns the plain text of a bucket document, extracting it on demand.
type DocumentReader interface {
	Ensure(ctx context.Context, filename string) (text string, cached bool, err error)
}

// maxParseChars bounds the text handed back to the model.
const maxParseChars = 60_000

type DocumentParseInput struct {
	Filename string `json:"filename"`
	Query    string `json:"query,omitempty"`
}

func (in *DocumentParseInput) Validate() error { return requireText("filename", in.Filename) }

type DocumentParseOutput struct {
	Filename  string `json:"filename"`
	Content   string `json:"content"`
	Cached    bool   `json:"cached"`
	Truncated bool   `json:"truncated,omitempty"`
}

func newDocumentParseTool(r DocumentReader) tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolDocumentParse,
			Desc: "Parse a document and return its content as text. Use it when search chunks are not enough and the whole document is needed.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"filename": {
					Type:     schema.String,
					Desc:     "File name including extension (e.g., perda-1-2025.pdf). Must exist in the document bucket.",
					Required: true,
				},
				"query": {
					Type: schema.String,
					Desc: "Optional topic; when given only paragraphs mentioning it are returned",
				},
			}),
		},
		func(ctx context.Context, in *DocumentParseInput) (*DocumentParseOutput, error) {
			text, cached, err := r.Ensure(ctx, in.Filename)
			if err != nil {
				return nil, err
			}
			if q := strings.TrimSpace(in.Query); q != "" {
				if focused := focusParagraphs(text, q); focused != "" {
					text = focused
				}
			}
			out := &DocumentParseOutput{Filename: in.Filename, Content: text, Cached: cached}
			if r := []rune(text); len(r) > maxParseChars {
				out.Content = string(r[:maxParseChars])
				out.Truncated = true
			}
			return out, nil
		},
	)
}

// focusParagraphs keeps the paragraphs that mention any word of query.
func focusParagraphs(text, query string) string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len([]rune(w)) >= 3 {
			terms = append(terms, w)
		}
	}
	if len(terms) == 0 {
		return ""
	}

	var kept []string
	for _, p := range strings.Split(text, "\n\n") {
		lower := strings.ToLower(p)
		for _, t := range terms {
			if strings.Contains(lower, t) {
				kept = append(kept, strings.TrimSpace(p))
				break
			}
		}
	}
	return strings.Join(kept, "\n\n")
}
