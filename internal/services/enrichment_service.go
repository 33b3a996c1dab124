package services

import (
	"aria/internal/models"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ReplyEnricher turns plain reply text into optional structured blocks.
// Informational and capability turns bypass enrichment entirely.
type ReplyEnricher interface {
	Enrich(reply string) []models.ReplyBlock
}

// EnrichmentService derives option cards from the markdown structure of a
// reply. A bulleted list of three or more items where most carry a link reads
// as a set of options worth rendering as cards; anything else stays prose.
type EnrichmentService struct {
	md goldmark.Markdown
}

// NewEnrichmentService creates the markdown-based enricher.
func NewEnrichmentService() *EnrichmentService {
	return &EnrichmentService{md: goldmark.New()}
}

// Enrich parses the reply and extracts an option_set block per qualifying
// list. Returns nil when the reply has no card-worthy structure.
func (s *EnrichmentService) Enrich(reply string) []models.ReplyBlock {
	if reply == "" {
		return nil
	}

	source := []byte(reply)
	doc := s.md.Parser().Parse(text.NewReader(source))

	var blocks []models.ReplyBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		list, ok := n.(*ast.List)
		if !ok {
			return ast.WalkContinue, nil
		}

		items := extractListItems(list, source)
		if len(items) < 3 {
			return ast.WalkSkipChildren, nil
		}
		linked := 0
		for _, item := range items {
			if item.ActionURL != "" {
				linked++
			}
		}
		if linked*2 < len(items) {
			return ast.WalkSkipChildren, nil
		}

		blocks = append(blocks, models.ReplyBlock{
			Kind:  models.BlockKindOptionSet,
			Items: items,
		})
		return ast.WalkSkipChildren, nil
	})

	return blocks
}

func extractListItems(list *ast.List, source []byte) []models.ReplyBlockItem {
	var items []models.ReplyBlockItem
	for child := list.FirstChild(); child != nil; child = child.NextSibling() {
		item, ok := child.(*ast.ListItem)
		if !ok {
			continue
		}

		var title, url, rest string
		_ = ast.Walk(item, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			switch node := n.(type) {
			case *ast.Link:
				if url == "" {
					url = string(node.Destination)
					title = nodeText(node, source)
				}
				return ast.WalkSkipChildren, nil
			case *ast.Text:
				rest += string(node.Segment.Value(source))
			}
			return ast.WalkContinue, nil
		})

		if title == "" {
			title = firstSentence(rest)
			rest = ""
		}
		if title == "" {
			continue
		}
		items = append(items, models.ReplyBlockItem{
			Title:     title,
			Subtitle:  trimSubtitle(rest),
			ActionURL: url,
		})
	}
	return items
}

func nodeText(n ast.Node, source []byte) string {
	var out string
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := child.(*ast.Text); ok {
				out += string(t.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return out
}

func firstSentence(s string) string {
	for i, r := range s {
		if r == '.' || r == ':' || r == '\n' {
			return s[:i]
		}
	}
	return s
}

func trimSubtitle(s string) string {
	const maxLen = 140
	// Drop leading separators left over from "Title — description" phrasing.
	for len(s) > 0 && (s[0] == ' ' || s[0] == '-' || s[0] == ':' || s[0] == ',') {
		s = s[1:]
	}
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
