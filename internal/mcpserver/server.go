// Package mcpserver exposes parameter extraction, parameter edits, metrics
// parsing and path templating as MCP tools over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentic-research/alchemy/api"
	"github.com/agentic-research/alchemy/internal/ctxlog"
	"github.com/agentic-research/alchemy/internal/editor"
	"github.com/agentic-research/alchemy/internal/extract"
	"github.com/agentic-research/alchemy/internal/metrics"
	"github.com/agentic-research/alchemy/internal/pathtmpl"
	"github.com/agentic-research/alchemy/internal/report"
	billy "github.com/go-git/go-billy/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Options configure the tool handlers.
type Options struct {
	// Root is the directory fsys is rooted at. Absolute paths under Root are
	// accepted and made relative to it.
	Root   string
	Editor editor.Options
	// DictParams allows the dict kind.
	DictParams bool
}

// Server binds the tool handlers to a filesystem.
type Server struct {
	fsys billy.Filesystem
	opts Options
}

// New returns a Server reading and writing scripts through fsys.
func New(fsys billy.Filesystem, opts Options) *Server {
	return &Server{fsys: fsys, opts: opts}
}

// MCP builds the MCP server with every tool registered.
func (s *Server) MCP(version string) *server.MCPServer {
	srv := server.NewMCPServer("alchemy", version, server.WithToolCapabilities(false))

	kindOpt := mcp.WithString("kind",
		mcp.Description("Declaration shape: argparse, config or dict (default argparse)"),
		mcp.Enum("argparse", "config", "dict"),
	)

	srv.AddTool(mcp.NewTool("list_parameters",
		mcp.WithDescription("List the hyperparameters declared in a Python training script"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Script path")),
		kindOpt,
	), s.listParameters)

	srv.AddTool(mcp.NewTool("set_parameters",
		mcp.WithDescription("Rewrite parameter values in place, leaving every other byte of the script untouched"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Script path")),
		kindOpt,
		mcp.WithObject("values", mcp.Required(), mcp.Description("Map of parameter name to new value text")),
	), s.setParameters)

	srv.AddTool(mcp.NewTool("parse_metrics",
		mcp.WithDescription("Extract per-epoch numeric metrics from training output"),
		mcp.WithString("output", mcp.Required(), mcp.Description("Captured stdout/stderr text")),
	), s.parseMetrics)

	srv.AddTool(mcp.NewTool("templatize_path",
		mcp.WithDescription("Replace the digit runs of a dataset path with {num} and expand it"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Concrete dataset path")),
		mcp.WithNumber("num", mcp.Description("Number of runs to expand (default 1)")),
	), s.templatizePath)

	return srv
}

// ServeStdio runs the MCP server until stdin closes.
func (s *Server) ServeStdio(ctx context.Context, version string) error {
	ctxlog.FromContext(ctx).Info("serving MCP tools on stdio")
	return server.ServeStdio(s.MCP(version))
}

// path returns the required "path" argument relative to the filesystem root.
func (s *Server) path(req mcp.CallToolRequest) (string, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) || s.opts.Root == "" {
		return p, nil
	}
	rel, err := filepath.Rel(s.opts.Root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside %s", p, s.opts.Root)
	}
	return rel, nil
}

func (s *Server) kind(req mcp.CallToolRequest) (api.Kind, error) {
	kind, err := api.ParseKind(req.GetString("kind", string(api.KindArgparse)))
	if err != nil {
		return "", err
	}
	if kind == api.KindDict && !s.opts.DictParams {
		return "", errors.New("dict parameters are disabled by configuration")
	}
	return kind, nil
}

func (s *Server) listParameters(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := s.path(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := s.kind(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	params, _, err := extract.File(ctx, s.fsys, path, kind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(report.JSON(report.Params(params))), nil
}

func (s *Server) setParameters(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := s.path(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := s.kind(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	values, ok := req.GetArguments()["values"].(map[string]any)
	if !ok || len(values) == 0 {
		return mcp.NewToolResultError(`"values" must be a non-empty object`), nil
	}

	sess, err := editor.Open(ctx, s.fsys, path, kind, s.opts.Editor)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := sess.Set(name, valueText(values[name])); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	res, err := sess.Save(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(report.JSON(report.Save(path, res))), nil
}

// valueText turns a JSON argument into the text a user would have typed.
func valueText(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		if v {
			return "True"
		}
		return "False"
	case nil:
		return "None"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	}
	return fmt.Sprint(v)
}

func (s *Server) parseMetrics(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	output, err := req.RequireString("output")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(report.JSON(report.Metrics(metrics.Parse(output)))), nil
}

func (s *Server) templatizePath(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	num := req.GetInt("num", 1)

	tmpl := pathtmpl.Templatize(path)
	doc := map[string]any{"template": tmpl}
	paths, err := pathtmpl.Expand(tmpl, num)
	if err != nil {
		doc["error"] = err.Error()
	} else {
		expanded := make([]any, len(paths))
		for i, p := range paths {
			expanded[i] = p
		}
		doc["paths"] = expanded
	}
	return mcp.NewToolResultText(report.JSON(doc)), nil
}
