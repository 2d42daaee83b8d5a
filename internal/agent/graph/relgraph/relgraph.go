// Package relgraph renders document relationships as Mermaid flowchart text.
package relgraph

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

const Format = "mermaid"

type Relationship struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// InvalidReferenceError lists every relationship whose endpoint is not a declared document.
type InvalidReferenceError struct {
	Edges []Relationship
}

func (e *InvalidReferenceError) Error() string {
	parts := make([]string, len(e.Edges))
	for i, r := range e.Edges {
		parts[i] = r.From + " -> " + r.To
	}
	return "invalid document references in relationships: " + strings.Join(parts, ", ")
}

var (
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	grammarRe    = regexp.MustCompile(`[\[\](){}|<>]`)
	spaceRe      = regexp.MustCompile(`\s+`)
	extRe        = regexp.MustCompile(`\.[^/.]+$`)
	nonAlnumRe   = regexp.MustCompile(`[^a-zA-Z0-9]`)
	underscoreRe = regexp.MustCompile(`_+`)

	entities = strings.NewReplacer(
		"&nbsp;", " ",
		"&quot;", `"`,
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
	)
)

// Build validates relationships against documents and renders a top-down graph.
func Build(documents []string, relationships []Relationship) (string, error) {
	known := make(map[string]struct{}, len(documents))
	for _, d := range documents {
		known[d] = struct{}{}
	}

	var invalid []Relationship
	for _, r := range relationships {
		_, okFrom := known[r.From]
		_, okTo := known[r.To]
		if !okFrom || !okTo {
			invalid = append(invalid, r)
		}
	}
	if len(invalid) > 0 {
		return "", &InvalidReferenceError{Edges: invalid}
	}

	lines := []string{"graph TD"}
	if len(relationships) > 0 {
		for _, r := range relationships {
			lines = append(lines, edgeLine(r))
		}
		return strings.Join(lines, "\n"), nil
	}

	seen := make(map[string]struct{}, len(documents))
	for _, d := range documents {
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		lines = append(lines, "    "+node(d))
	}
	return strings.Join(lines, "\n"), nil
}

func edgeLine(r Relationship) string {
	arrow := "-->"
	if rel := SanitizeLabel(r.Type); rel != "" {
		arrow = "-->|" + rel + "|"
	}
	return fmt.Sprintf("    %s %s %s", node(r.From), arrow, node(r.To))
}

func node(doc string) string {
	return fmt.Sprintf(`%s["%s"]`, NodeID(doc), DocumentLabel(doc))
}

// SanitizeLabel makes s safe inside a quoted Mermaid label or an edge label.
// It is idempotent.
func SanitizeLabel(s string) string {
	for {
		next := sanitizeOnce(s)
		if next == s {
			return next
		}
		s = next
	}
}

func sanitizeOnce(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	s = entities.Replace(s)
	s = grammarRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, `"`, "'")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// DocumentLabel is the display label of a document: the sanitized filename
// without its extension, or the whole sanitized name when nothing else is left.
func DocumentLabel(filename string) string {
	base := extRe.ReplaceAllString(entities.Replace(tagRe.ReplaceAllString(filename, "")), "")
	if label := SanitizeLabel(base); label != "" {
		return label
	}
	return SanitizeLabel(filename)
}

// NodeID derives a Mermaid identifier from a filename. Names with no usable
// characters fall back to a hash so the id is never empty.
func NodeID(filename string) string {
	id := tagRe.ReplaceAllString(filename, "")
	id = nonAlnumRe.ReplaceAllString(id, "_")
	id = underscoreRe.ReplaceAllString(id, "_")
	id = strings.Trim(id, "_")

	switch {
	case id == "":
		h := fnv.New32a()
		_, _ = h.Write([]byte(filename))
		return fmt.Sprintf("doc_%08x", h.Sum32())
	case id == "end":
		return "end_"
	}
	return id
}
