// Package mcpserver exposes selector generation, testing and export as MCP
// tools over stdio.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/net/html"

	"piifinder/internal/adapter/dom"
	"piifinder/internal/domain"
	"piifinder/internal/usecase/aiselect"
	"piifinder/internal/usecase/selector"
	"piifinder/internal/usecase/session"
)

// Resolver is the AI-assisted selector path.
type Resolver = session.Resolver

// Deps are the collaborators the tools use. Resolver and Loader are optional.
type Deps struct {
	Resolver Resolver
	Loader   domain.PageLoader
	Selector selector.Options
	Version  string
}

type handlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

type toolDef struct {
	name        string
	description string
	schema      string
	handle      handlerFunc
}

// Server serves the piifinder tools.
type Server struct {
	mcp    *server.MCPServer
	deps   Deps
	logger *slog.Logger
	tools  map[string]server.ToolHandlerFunc
}

// New builds the server and registers every tool. Each tool's input schema
// is compiled once and checked before its handler runs.
func New(deps Deps, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := &Server{
		mcp:    server.NewMCPServer("piifinder", deps.Version, server.WithToolCapabilities(false)),
		deps:   deps,
		logger: logger,
		tools:  make(map[string]server.ToolHandlerFunc),
	}

	defs := []toolDef{
		{
			name:        "generate_selector",
			description: "Generate a CSS selector for a PII element. The element is found by CSS selector (target) or by its text.",
			schema:      generateSchema,
			handle:      s.generate,
		},
		{
			name:        "test_selector",
			description: "Count the elements a CSS selector matches. An invalid selector yields count -1.",
			schema:      testSchema,
			handle:      s.test,
		},
		{
			name:        "export_selector",
			description: "Convert a raw selector into its escaped export form.",
			schema:      exportSchema,
			handle:      s.export,
		},
	}
	for _, d := range defs {
		compiled, err := compileSchema(d.name, d.schema)
		if err != nil {
			return nil, err
		}
		h := s.wrap(d.name, compiled, d.handle)
		s.tools[d.name] = h
		s.mcp.AddTool(mcp.NewToolWithRawSchema(d.name, d.description, json.RawMessage(d.schema)), h)
	}
	return s, nil
}

// Serve runs the stdio transport until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp server listening on stdio", "tools", len(s.tools))
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func compileSchema(name, raw string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", name, err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", name, err)
	}
	return compiled, nil
}

// wrap validates arguments against the tool schema and renders the
// handler's result as JSON text. Handler errors become tool errors, not
// protocol errors.
func (s *Server) wrap(name string, schema *jsonschema.Schema, h handlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if err := schema.Validate(v); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("schema validation failed: %v", err)), nil
		}

		s.logger.Debug("mcp tool call", "tool", name)
		result, err := h(ctx, raw)
		if err != nil {
			s.logger.Warn("mcp tool failed", "tool", name, "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(strings.TrimSpace(buf.String())), nil
	}
}

// loadDocument parses inline HTML or captures url through the page loader.
func (s *Server) loadDocument(ctx context.Context, htmlSrc, url string) (*dom.Document, error) {
	if htmlSrc != "" {
		return dom.ParseString(htmlSrc)
	}
	if s.deps.Loader == nil {
		return nil, domain.NewDomainError("mcpserver.load", domain.ErrInvalidInput, "url given but no browser is configured")
	}
	src, err := s.deps.Loader.LoadHTML(ctx, url)
	if err != nil {
		return nil, err
	}
	return dom.ParseString(src)
}

const sourceProps = `
    "html": {"type": "string", "minLength": 1, "description": "Page HTML"},
    "url": {"type": "string", "pattern": "^https?://", "description": "Page URL captured with the browser"}`

const generateSchema = `{
  "type": "object",
  "properties": {` + sourceProps + `,
    "target": {"type": "string", "minLength": 1, "description": "CSS selector of the clicked element"},
    "text": {"type": "string", "minLength": 1, "description": "Text of the clicked element"},
    "strategy": {"type": "string", "enum": ["smart", "semantic", "structural"]},
    "use_ai": {"type": "boolean"},
    "model": {"type": "string"}
  },
  "allOf": [
    {"anyOf": [{"required": ["html"]}, {"required": ["url"]}]},
    {"anyOf": [{"required": ["target"]}, {"required": ["text"]}]}
  ],
  "additionalProperties": false
}`

const testSchema = `{
  "type": "object",
  "properties": {` + sourceProps + `,
    "selector": {"type": "string", "minLength": 1}
  },
  "required": ["selector"],
  "anyOf": [{"required": ["html"]}, {"required": ["url"]}],
  "additionalProperties": false
}`

const exportSchema = `{
  "type": "object",
  "properties": {
    "selector": {"type": "string", "minLength": 1}
  },
  "required": ["selector"],
  "additionalProperties": false
}`

type generateArgs struct {
	HTML     string `json:"html"`
	URL      string `json:"url"`
	Target   string `json:"target"`
	Text     string `json:"text"`
	Strategy string `json:"strategy"`
	UseAI    bool   `json:"use_ai"`
	Model    string `json:"model"`
}

type generateResult struct {
	*domain.Selection
	Matches int                     `json:"matches"`
	Upgrade *domain.UpgradeAdvisory `json:"upgrade,omitempty"`
	Failure *domain.FailureAdvisory `json:"failure,omitempty"`
}

func (s *Server) generate(ctx context.Context, raw json.RawMessage) (any, error) {
	var args generateArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	strategy, err := domain.ParseStrategy(args.Strategy)
	if err != nil {
		return nil, err
	}
	doc, err := s.loadDocument(ctx, args.HTML, args.URL)
	if err != nil {
		return nil, err
	}
	el, err := session.Locate(doc, args.Target, args.Text)
	if err != nil {
		return nil, err
	}

	var outcome *aiselect.Outcome
	resolver := s.deps.Resolver
	if args.UseAI && resolver != nil {
		resolver = outcomeRecorder{inner: resolver, out: &outcome}
	}
	ctrl := session.New(doc, resolver, session.Options{
		Strategy: strategy,
		Selector: s.deps.Selector,
		UseAI:    args.UseAI,
		Request:  aiselect.Request{Model: args.Model},
	}, s.logger)
	if _, err := ctrl.Start(); err != nil {
		return nil, err
	}
	sel, err := ctrl.Select(ctx, el)
	if err != nil {
		return nil, err
	}

	res := generateResult{Selection: sel, Matches: dom.Count(doc.Root(), sel.Selector)}
	if outcome != nil {
		res.Upgrade = outcome.Upgrade
		res.Failure = outcome.Failure
	}
	return res, nil
}

// outcomeRecorder keeps the resolver's outcome so its advisories reach the
// tool result.
type outcomeRecorder struct {
	inner Resolver
	out   **aiselect.Outcome
}

func (r outcomeRecorder) Generate(ctx context.Context, el *html.Node, req aiselect.Request) (*aiselect.Outcome, error) {
	o, err := r.inner.Generate(ctx, el, req)
	*r.out = o
	return o, err
}

type testArgs struct {
	HTML     string `json:"html"`
	URL      string `json:"url"`
	Selector string `json:"selector"`
}

type testResult struct {
	Selector string `json:"selector"`
	Count    int    `json:"count"`
	Valid    bool   `json:"valid"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) test(ctx context.Context, raw json.RawMessage) (any, error) {
	var args testArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	doc, err := s.loadDocument(ctx, args.HTML, args.URL)
	if err != nil {
		return nil, err
	}
	ctrl := session.New(doc, nil, session.Options{}, s.logger)
	n, err := ctrl.Preview(args.Selector)
	res := testResult{Selector: args.Selector, Count: n, Valid: err == nil}
	if err != nil {
		res.Error = err.Error()
	}
	return res, nil
}

type exportArgs struct {
	Selector string `json:"selector"`
}

func (s *Server) export(_ context.Context, raw json.RawMessage) (any, error) {
	var args exportArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return map[string]string{"selector": args.Selector, "exported": selector.Export(args.Selector)}, nil
}
