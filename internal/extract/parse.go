package extract

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ParseError contains structured information about a syntax error.
type ParseError struct {
	FilePath string
	Line     uint32 // 0-indexed
	Column   uint32 // 0-indexed
	Message  string
}

func (e *ParseError) Error() string {
	name := e.FilePath
	if name == "" {
		name = "<source>"
	}
	return fmt.Sprintf("%s:%d:%d: %s", name, e.Line+1, e.Column+1, e.Message)
}

// Tree is a parsed Python source together with the bytes it was parsed from.
type Tree struct {
	Root   *sitter.Node
	Source []byte
	Lang   *sitter.Language

	tree *sitter.Tree
}

// Close releases the underlying tree-sitter tree.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}

// Parse parses src with the tree-sitter Python grammar. A tree containing
// ERROR or MISSING nodes is rejected with a *ParseError pointing at the first
// one; callers never see a partially valid tree.
func Parse(ctx context.Context, src []byte, filePath string) (*Tree, error) {
	lang := python.GetLanguage()
	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed for %s: %w", filePath, err)
	}

	root := tree.RootNode()
	if root == nil {
		tree.Close()
		return nil, fmt.Errorf("tree-sitter returned nil root for %s", filePath)
	}

	if root.HasError() {
		defer tree.Close()
		if errNode := findFirstError(root); errNode != nil {
			return nil, &ParseError{
				FilePath: filePath,
				Line:     errNode.StartPoint().Row,
				Column:   errNode.StartPoint().Column,
				Message:  "syntax error",
			}
		}
		return nil, &ParseError{FilePath: filePath, Message: "syntax tree contains errors"}
	}

	return &Tree{Root: root, Source: src, Lang: lang, tree: tree}, nil
}

// SyntaxErrors returns every ERROR/MISSING location in src for diagnostic
// reporting. Returns nil for valid source.
func SyntaxErrors(ctx context.Context, src []byte, filePath string) []ParseError {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || !root.HasError() {
		return nil
	}

	var errs []ParseError
	collectErrors(root, filePath, &errs)
	return errs
}

// findFirstError does a depth-first search for the first ERROR node.
func findFirstError(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() || child.IsError() || child.IsMissing() {
			if found := findFirstError(child); found != nil {
				return found
			}
		}
	}
	return nil
}

func collectErrors(node *sitter.Node, filePath string, errs *[]ParseError) {
	if node.IsError() || node.IsMissing() {
		msg := "syntax error"
		if node.IsMissing() {
			msg = fmt.Sprintf("missing %s", node.Type())
		}
		*errs = append(*errs, ParseError{
			FilePath: filePath,
			Line:     node.StartPoint().Row,
			Column:   node.StartPoint().Column,
			Message:  msg,
		})
		return // don't recurse into error children
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() || child.IsError() || child.IsMissing() {
			collectErrors(child, filePath, errs)
		}
	}
}
