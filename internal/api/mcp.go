package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/quillback/quillback/internal/retrieval"
	"github.com/quillback/quillback/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Searcher Searcher
	QA       QA
	Jobs     JobManager
	TopK     int
}

// NewMCPServer creates an MCP server exposing the journal over stdio, so an
// MCP-capable client can search and question the journal directly.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"quillback",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("quillback — local journal with semantic recall and grounded question answering."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_journal",
			mcp.WithDescription("Semantically search journal entries and return the most relevant ones with scores."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchJournal(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_journal",
			mcp.WithDescription("Ask a question answered strictly from journal entries."),
			mcp.WithString("query", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAskJournal(deps),
	)

	s.AddTool(
		mcp.NewTool("import_status",
			mcp.WithDescription("Report progress of the background embedding job."),
		),
		mcpImportStatus(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"journal://recent",
			"Recent Entries",
			mcp.WithResourceDescription("Last 10 journal entries (truncated)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpSearchJournal(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", deps.TopK)
		if limit <= 0 {
			limit = deps.TopK
		}
		if limit > 50 {
			limit = 50
		}

		results, err := deps.Searcher.Search(ctx, query, limit)
		if errors.Is(err, retrieval.ErrUnavailable) {
			return mcpText("[]"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAskJournal(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		result, err := deps.QA.Answer(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("answer failed: %v", err)), nil
		}
		return mcpText(result), nil
	}
}

func mcpImportStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap := deps.Jobs.Status()
		resp := importStatusResponse{
			Status:   string(snap.Status),
			Progress: snap.Completed,
			Total:    snap.Total,
			JobID:    snap.JobID,
			Error:    snap.Error,
		}
		if !snap.StartedAt.IsZero() {
			resp.StartedAt = snap.StartedAt.Format(time.RFC3339)
		}
		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries, err := deps.Store.ListEntries()
		if err != nil {
			return nil, fmt.Errorf("failed to list entries: %w", err)
		}
		if len(entries) > 10 {
			entries = entries[:10]
		}

		type entrySummary struct {
			ID      int64  `json:"id"`
			Date    string `json:"date"`
			Content string `json:"content"`
		}

		summaries := make([]entrySummary, len(entries))
		for i, e := range entries {
			content := e.Content
			if utf8.RuneCountInString(content) > 200 {
				runes := []rune(content)
				content = string(runes[:200]) + "..."
			}
			summaries[i] = entrySummary{
				ID:      e.ID,
				Date:    e.Date.Format("2006-01-02"),
				Content: content,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal entries: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
