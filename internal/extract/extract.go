// Package extract discovers tunable parameters declared in Python training
// scripts by walking their tree-sitter syntax tree.
package extract

import (
	"context"
	"fmt"

	"github.com/agentic-research/alchemy/api"
	"github.com/agentic-research/alchemy/internal/ctxlog"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	sitter "github.com/smacker/go-tree-sitter"
)

const (
	addArgumentMethod = "add_argument"
	configClassName   = "Config"
	constructorName   = "__init__"
	dictVariableName  = "parameter"
)

// Params returns the parameters of the requested kind declared in src.
// A syntax error anywhere in src fails the whole call with a *ParseError.
// A missing construct yields an empty result and no error.
func Params(ctx context.Context, src []byte, filePath string, kind api.Kind) ([]api.Param, error) {
	t, err := Parse(ctx, src, filePath)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	var params []api.Param
	switch kind {
	case api.KindArgparse:
		params, err = argparseParams(t)
	case api.KindConfig:
		params, err = configParams(t)
	case api.KindDict:
		params, err = dictParams(t)
	default:
		return nil, fmt.Errorf("unknown parameter kind %q", kind)
	}
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Debug("extracted parameters", "file", filePath, "kind", kind, "count", len(params))
	return params, nil
}

// File reads path from fsys and extracts its parameters. The raw source is
// returned alongside so callers can rewrite it without a second read.
func File(ctx context.Context, fsys billy.Filesystem, path string, kind api.Kind) ([]api.Param, []byte, error) {
	src, err := util.ReadFile(fsys, path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	params, err := Params(ctx, src, path, kind)
	if err != nil {
		return nil, nil, err
	}
	return params, src, nil
}

const addArgumentQuery = `
	(call
		function: (attribute attribute: (identifier) @method)
		arguments: (argument_list) @args) @call
`

func argparseParams(t *Tree) ([]api.Param, error) {
	matches, err := query(t, t.Root, addArgumentQuery)
	if err != nil {
		return nil, err
	}

	params := []api.Param{}
	for _, m := range matches {
		if t.text(m["method"]) != addArgumentMethod {
			continue
		}
		call, args := m["call"], m["args"]
		p := api.Param{
			Kind:         api.KindArgparse,
			DeclaredType: string(api.TypeString),
			Value:        api.Value{Type: api.TypeNone, Text: "None"},
			Line:         call.StartPoint().Row,
		}
		nameFound := false
		for i := 0; i < int(args.NamedChildCount()); i++ {
			arg := args.NamedChild(i)
			switch arg.Type() {
			case "string":
				if nameFound {
					continue
				}
				if name, _, ok := unquote(t.text(arg)); ok {
					p.Name = name
					nameFound = true
				}
			case "keyword_argument":
				key := t.text(arg.ChildByFieldName("name"))
				val := arg.ChildByFieldName("value")
				if val == nil {
					continue
				}
				switch key {
				case "default":
					p.Value = literalValue(val, t.Source)
					p.Span = spanOf(val)
				case "type":
					if val.Type() == "identifier" {
						p.DeclaredType = t.text(val)
					}
				case "help":
					if v := literalValue(val, t.Source); v.Type == api.TypeString {
						p.Help = v.Text
					}
				}
			}
		}
		params = append(params, p)
	}
	return params, nil
}

const classQuery = `(class_definition name: (identifier) @name body: (block) @body)`

func configParams(t *Tree) ([]api.Param, error) {
	matches, err := query(t, t.Root, classQuery)
	if err != nil {
		return nil, err
	}

	var c collector
	for _, m := range matches {
		if t.text(m["name"]) != configClassName {
			continue
		}
		body := m["body"]
		for i := 0; i < int(body.NamedChildCount()); i++ {
			fn := unwrapDecorated(body.NamedChild(i))
			if fn == nil || fn.Type() != "function_definition" {
				continue
			}
			if t.text(fn.ChildByFieldName("name")) != constructorName {
				continue
			}
			if fnBody := fn.ChildByFieldName("body"); fnBody != nil {
				collectSelfAssignments(t, fnBody, &c)
			}
		}
	}
	return c.params, nil
}

// collectSelfAssignments records `self.x = <value>` statements found directly
// in the constructor body. Chained targets (self.a = self.b = 1) all receive
// the final value.
func collectSelfAssignments(t *Tree, body *sitter.Node, c *collector) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		if stmt.Type() != "expression_statement" || stmt.NamedChildCount() == 0 {
			continue
		}
		assign := stmt.NamedChild(0)
		if assign.Type() != "assignment" {
			continue
		}

		var targets []*sitter.Node
		value := assign
		for value != nil && value.Type() == "assignment" {
			targets = append(targets, value.ChildByFieldName("left"))
			value = value.ChildByFieldName("right")
		}
		if value == nil {
			continue // bare annotation: self.x: int
		}

		for _, target := range targets {
			name, ok := selfAttribute(t, target)
			if !ok {
				continue
			}
			c.put(api.Param{
				Name:  name,
				Kind:  api.KindConfig,
				Value: literalValue(value, t.Source),
				Line:  stmt.StartPoint().Row,
				Span:  spanOf(value),
			})
		}
	}
}

func selfAttribute(t *Tree, n *sitter.Node) (string, bool) {
	if n == nil || n.Type() != "attribute" {
		return "", false
	}
	obj := n.ChildByFieldName("object")
	attr := n.ChildByFieldName("attribute")
	if obj == nil || attr == nil || obj.Type() != "identifier" || t.text(obj) != "self" {
		return "", false
	}
	return t.text(attr), true
}

func unwrapDecorated(n *sitter.Node) *sitter.Node {
	if n != nil && n.Type() == "decorated_definition" {
		return n.ChildByFieldName("definition")
	}
	return n
}

const dictQuery = `
	(module
		(expression_statement
			(assignment left: (identifier) @name right: (dictionary) @dict)))
`

func dictParams(t *Tree) ([]api.Param, error) {
	matches, err := query(t, t.Root, dictQuery)
	if err != nil {
		return nil, err
	}

	var c collector
	for _, m := range matches {
		if t.text(m["name"]) != dictVariableName {
			continue
		}
		dict := m["dict"]
		for i := 0; i < int(dict.NamedChildCount()); i++ {
			pair := dict.NamedChild(i)
			if pair.Type() != "pair" {
				continue
			}
			keyNode, valNode := pair.ChildByFieldName("key"), pair.ChildByFieldName("value")
			if keyNode == nil || valNode == nil || keyNode.Type() != "string" {
				continue
			}
			key, _, ok := unquote(t.text(keyNode))
			if !ok {
				continue
			}
			c.put(api.Param{
				Name:  key,
				Kind:  api.KindDict,
				Value: literalValue(valNode, t.Source),
				Line:  pair.StartPoint().Row,
				Span:  spanOf(valNode),
			})
		}
	}
	return c.params, nil
}

func spanOf(n *sitter.Node) api.Span {
	return api.Span{StartByte: n.StartByte(), EndByte: n.EndByte(), Row: n.StartPoint().Row}
}

// collector keeps mapping semantics: a repeated name updates the value in
// place and keeps the position of its first occurrence.
type collector struct {
	params []api.Param
	index  map[string]int
}

func (c *collector) put(p api.Param) {
	if c.index == nil {
		c.index = make(map[string]int)
		c.params = []api.Param{}
	}
	if i, ok := c.index[p.Name]; ok {
		c.params[i] = p
		return
	}
	c.index[p.Name] = len(c.params)
	c.params = append(c.params, p)
}
