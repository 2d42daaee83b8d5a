package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/telo-ai/server/internal/agent/graph/relgraph"
	errx "github.com/telo-ai/server/internal/core/error"
)

type DocumentRelationGraphInput struct {
	Documents     []string                `json:"documents"`
	Relationships []relgraph.Relationship `json:"relationships"`
}

func (in *DocumentRelationGraphInput) Validate() error {
	if in.Documents == nil {
		return errors.New("documents is required")
	}
	if in.Relationships == nil {
		return errors.New("relationships is required")
	}
	for i, r := range in.Relationships {
		if r.From == "" || r.To == "" {
			return fmt.Errorf("relationships[%d] needs both from and to", i)
		}
	}
	return nil
}

type GraphMetadata struct {
	DocumentCount     int    `json:"documentCount"`
	RelationshipCount int    `json:"relationshipCount"`
	Format            string `json:"format"`
}

type DocumentRelationGraphOutput struct {
	Mermaid  string        `json:"mermaid"`
	Metadata GraphMetadata `json:"metadata"`
}

func newDocumentRelationGraphTool() tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolDocumentRelationGraph,
			Desc: "Generate a visual relationship graph between documents in Mermaid format. Returns Mermaid diagram code showing documents as nodes and relationships as edges. Use this when users ask to visualize document relationships, dependencies, or connections.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"documents": {
					Type:     schema.Array,
					Desc:     "Array of document filenames (e.g., ['doc-a.pdf', 'doc-b.pdf'])",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
					Required: true,
				},
				"relationships": {
					Type: schema.Array,
					Desc: "Array of relationship definitions between documents",
					ElemInfo: &schema.ParameterInfo{
						Type: schema.Object,
						SubParams: map[string]*schema.ParameterInfo{
							"from": {Type: schema.String, Desc: "Source document filename", Required: true},
							"to":   {Type: schema.String, Desc: "Target document filename", Required: true},
							"type": {Type: schema.String, Desc: "Relationship type (free-form label, e.g., 'mengubah', 'mencabut', 'melengkapi')", Required: true},
						},
					},
					Required: true,
				},
			}),
		},
		func(_ context.Context, in *DocumentRelationGraphInput) (*DocumentRelationGraphOutput, error) {
			mermaid, err := relgraph.Build(in.Documents, in.Relationships)
			if err != nil {
				var ref *relgraph.InvalidReferenceError
				if errors.As(err, &ref) {
					return nil, errx.InvalidReference(err)
				}
				return nil, err
			}
			return &DocumentRelationGraphOutput{
				Mermaid: mermaid,
				Metadata: GraphMetadata{
					DocumentCount:     len(in.Documents),
					RelationshipCount: len(in.Relationships),
					Format:            relgraph.Format,
				},
			}, nil
		},
	)
}
