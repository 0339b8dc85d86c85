package approval

import (
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/stewardhq/steward/internal/models"
)

// ProposalParser reads change proposal documents: Markdown files with a
// title heading, a prose description, and fenced ```diff blocks holding
// the proposed edits.
type ProposalParser struct {
	markdown goldmark.Markdown
}

// NewProposalParser creates a parser.
func NewProposalParser() *ProposalParser {
	return &ProposalParser{
		markdown: goldmark.New(),
	}
}

// Parse extracts the title, description, and changed-line count from a
// proposal document. The line count is the number of added/removed
// lines summed across every diff fence; file headers (+++/---) are not
// counted.
func (p *ProposalParser) Parse(r io.Reader) (*models.ChangeProposal, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read proposal: %w", err)
	}

	doc := p.markdown.Parser().Parse(text.NewReader(source))

	proposal := &models.ChangeProposal{}
	var description []string

	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			if proposal.Title == "" && node.Level == 1 {
				proposal.Title = nodeText(node, source)
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph:
			description = append(description, nodeText(node, source))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			if string(node.Language(source)) == "diff" {
				proposal.LinesChanged += countDiffLines(node, source)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk proposal: %w", err)
	}

	proposal.Description = strings.Join(description, "\n")
	return proposal, nil
}

// ParseString is a convenience wrapper over Parse.
func (p *ProposalParser) ParseString(s string) (*models.ChangeProposal, error) {
	return p.Parse(strings.NewReader(s))
}

// ToTask converts a parsed proposal into the classifier's input,
// preferring the title plus description as the change description.
func ToTask(proposal *models.ChangeProposal) (models.ChangeTask, *models.ChangeAnalysis) {
	description := proposal.Title
	if proposal.Description != "" {
		description = description + " " + proposal.Description
	}
	task := models.ChangeTask{
		Description:    strings.TrimSpace(description),
		EstimatedLines: proposal.LinesChanged,
	}
	return task, &models.ChangeAnalysis{LinesChanged: proposal.LinesChanged}
}

// nodeText extracts the plain text content of a node's lines and
// inline children.
func nodeText(n ast.Node, source []byte) string {
	var sb strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
			continue
		}
		sb.WriteString(nodeText(c, source))
	}
	return sb.String()
}

// countDiffLines counts added and removed lines in a diff fence,
// skipping the +++/--- file headers.
func countDiffLines(block *ast.FencedCodeBlock, source []byte) int {
	count := 0
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		line := string(segment.Value(source))
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
			continue
		}
		if strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") {
			count++
		}
	}
	return count
}
