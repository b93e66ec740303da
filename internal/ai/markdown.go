package ai

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New().Parser()

// PlainText strips markdown syntax and returns the readable text of md with
// blocks separated by newlines.
func PlainText(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	source := []byte(md)
	doc := markdownParser.Parse(text.NewReader(source))
	var sb strings.Builder
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Type() == ast.TypeBlock && sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
				sb.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Text:
			sb.Write(n.Segment.Value(source))
			if n.SoftLineBreak() || n.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				sb.Write(line.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// LinkedNoteIDs returns the ids of notes referenced by in-workspace links of
// the form [title](/id) or [title](/notes/id), in document order without duplicates.
func LinkedNoteIDs(md string) []string {
	if strings.TrimSpace(md) == "" {
		return nil
	}
	source := []byte(md)
	doc := markdownParser.Parse(text.NewReader(source))
	seen := make(map[string]struct{})
	var ids []string
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := node.(*ast.Link)
		if !ok {
			return ast.WalkContinue, nil
		}
		id := noteIDFromDestination(string(link.Destination))
		if id == "" {
			return ast.WalkContinue, nil
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		return ast.WalkContinue, nil
	})
	return ids
}

func noteIDFromDestination(dest string) string {
	if !strings.HasPrefix(dest, "/") || strings.HasPrefix(dest, "//") {
		return ""
	}
	path := strings.TrimPrefix(dest, "/")
	path = strings.TrimPrefix(path, "notes/")
	if path == "" || strings.ContainsAny(path, "/?#") {
		return ""
	}
	return path
}
