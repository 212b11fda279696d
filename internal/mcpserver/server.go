// Package mcpserver exposes one session as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"tablesql/internal/session"
	"tablesql/internal/source"
	"tablesql/internal/vision"
)

// Name is the server name announced to clients.
const Name = "tablesql"

// Server binds the tools to a session.
type Server struct {
	sess   *session.Session
	reader *source.Reader
	mcp    *server.MCPServer
}

// New registers every tool on a new MCP server.
func New(sess *session.Session, reader *source.Reader, version string) *Server {
	s := &Server{
		sess:   sess,
		reader: reader,
		mcp:    server.NewMCPServer(Name, version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("load_table",
		mcp.WithDescription("Extract a table from an HTML page, CSV or XLSX file, generate its metadata and load it for querying"),
		mcp.WithString("source",
			mcp.Required(),
			mcp.Description("File path (.html, .htm, .csv, .xlsx) or http(s) URL"),
		),
		mcp.WithNumber("table",
			mcp.Description("Index of the HTML table to use (default: 0)"),
		),
		mcp.WithString("sheet",
			mcp.Description("XLSX worksheet name (default: first sheet)"),
		),
	), s.handleLoadTable)

	s.mcp.AddTool(mcp.NewTool("describe_table",
		mcp.WithDescription("Return the metadata of the loaded table as JSON"),
	), s.handleDescribeTable)

	s.mcp.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Answer a natural-language question about the loaded table with a read-only SQL query"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question about the table"),
		),
	), s.handleAsk)

	s.mcp.AddTool(mcp.NewTool("recommend_chart",
		mcp.WithDescription("Recommend a chart for the last query result and return its Chart.js configuration"),
		mcp.WithString("question",
			mcp.Description("What the chart should show (default: the last question)"),
		),
	), s.handleRecommendChart)

	s.mcp.AddTool(mcp.NewTool("analyze_image",
		mcp.WithDescription("Describe a chart image"),
		mcp.WithString("image",
			mcp.Required(),
			mcp.Description("Base64 image data, optionally as a data URL"),
		),
	), s.handleAnalyzeImage)

	s.mcp.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Report the session state and model availability"),
	), s.handleStatus)

	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves requests on stdin/stdout until stdin closes.
func (s *Server) ServeStdio() error {
	slog.Info("starting tablesql mcp server", "session", s.sess.ID())
	return server.ServeStdio(s.mcp)
}

type loadReply struct {
	Headers        []string `json:"headers"`
	Rows           int      `json:"rows"`
	Inserted       int      `json:"inserted"`
	Failed         int      `json:"failed"`
	MetadataSource string   `json:"metadataSource"`
}

func (s *Server) handleLoadTable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loc, err := request.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source parameter is required"), nil
	}
	spec := source.Spec{
		Location: loc,
		Table:    request.GetInt("table", 0),
		Sheet:    request.GetString("sheet", ""),
	}
	t, err := s.reader.Read(ctx, spec)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sess.SetTable(ctx, t); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.sess.Load(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	_, src, _ := s.sess.Metadata()
	return jsonResult(loadReply{
		Headers:        t.Headers,
		Rows:           t.Len(),
		Inserted:       res.RowCount,
		Failed:         res.FailedRows,
		MetadataSource: string(src),
	})
}

func (s *Server) handleDescribeTable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	meta, _, err := s.sess.Metadata()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(meta)
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question parameter is required"), nil
	}
	out, err := s.sess.Ask(ctx, q)
	if err != nil {
		msg := err.Error()
		if out.SQL != "" {
			msg = fmt.Sprintf("%s\nsql: %s", msg, out.SQL)
		}
		return mcp.NewToolResultError(msg), nil
	}
	return jsonResult(out)
}

type chartReply struct {
	Recommendation any `json:"recommendation"`
	Config         any `json:"config"`
}

func (s *Server) handleRecommendChart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec, cfg, err := s.sess.RecommendChart(ctx, request.GetString("question", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(chartReply{Recommendation: rec, Config: cfg})
}

func (s *Server) handleAnalyzeImage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := request.RequireString("image")
	if err != nil {
		return mcp.NewToolResultError("image parameter is required"), nil
	}
	img, err := vision.DecodeImage(data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.sess.AnalyzeImage(ctx, img)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.sess.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
