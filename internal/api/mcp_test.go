package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/quillback/quillback/internal/embedjob"
	"github.com/quillback/quillback/internal/retrieval"
	"github.com/quillback/quillback/internal/storage"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *fakeSearcher, *fakeQA, *fakeJobs) {
	t.Helper()
	searcher := &fakeSearcher{}
	qa := &fakeQA{answer: "an answer"}
	jobs := &fakeJobs{snap: embedjob.Snapshot{Status: embedjob.StatusIdle}}

	return MCPDeps{
		Store:    newTestStore(t),
		Searcher: searcher,
		QA:       qa,
		Jobs:     jobs,
		TopK:     5,
	}, searcher, qa, jobs
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_SearchJournal(t *testing.T) {
	deps, searcher, _, _ := newTestMCPDeps(t)
	searcher.results = []retrieval.Result{
		{ID: 1, Content: "went hiking", Score: 0.95},
		{ID: 2, Content: "rainy afternoon", Score: 0.6},
	}
	handler := mcpSearchJournal(deps)

	req := makeCallToolRequest("search_journal", map[string]interface{}{
		"query": "hiking",
		"limit": 3,
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var results []retrieval.Result
	if err := json.Unmarshal([]byte(toolText(t, result)), &results); err != nil {
		t.Fatalf("unmarshaling results: %v", err)
	}
	if len(results) != 2 || results[0].ID != 1 {
		t.Fatalf("results = %+v, want 2 led by id 1", results)
	}
	if searcher.gotK != 3 {
		t.Errorf("k = %d, want 3", searcher.gotK)
	}
}

func TestMCPTool_SearchJournal_EmptyIndex(t *testing.T) {
	deps, searcher, _, _ := newTestMCPDeps(t)
	searcher.err = retrieval.ErrUnavailable
	handler := mcpSearchJournal(deps)

	req := makeCallToolRequest("search_journal", map[string]interface{}{"query": "anything"})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "[]" {
		t.Fatalf("text = %q, want []", got)
	}
}

func TestMCPTool_SearchJournal_MissingQuery(t *testing.T) {
	deps, _, _, _ := newTestMCPDeps(t)
	handler := mcpSearchJournal(deps)

	req := makeCallToolRequest("search_journal", map[string]interface{}{})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing query")
	}
}

func TestMCPTool_AskJournal(t *testing.T) {
	deps, _, qa, _ := newTestMCPDeps(t)
	qa.answer = "You hiked on March 14."
	handler := mcpAskJournal(deps)

	req := makeCallToolRequest("ask_journal", map[string]interface{}{"query": "when did I hike?"})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != qa.answer {
		t.Fatalf("text = %q, want %q", got, qa.answer)
	}
}

func TestMCPTool_ImportStatus(t *testing.T) {
	deps, _, _, jobs := newTestMCPDeps(t)
	jobs.snap = embedjob.Snapshot{
		JobID:     "job-9",
		Status:    embedjob.StatusProcessing,
		Total:     20,
		Completed: 12,
		StartedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	handler := mcpImportStatus(deps)

	req := makeCallToolRequest("import_status", map[string]interface{}{})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var status importStatusResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &status); err != nil {
		t.Fatalf("unmarshaling status: %v", err)
	}
	if status.Status != "processing" || status.Progress != 12 || status.Total != 20 {
		t.Fatalf("status = %+v, want processing 12/20", status)
	}
}

func TestMCPResource_RecentEntries(t *testing.T) {
	deps, _, _, _ := newTestMCPDeps(t)
	for i := 1; i <= 12; i++ {
		_, err := deps.Store.SaveEntry(storage.Entry{
			Date:    time.Date(2025, 1, i, 0, 0, 0, 0, time.UTC),
			Content: "entry content",
		})
		if err != nil {
			t.Fatalf("SaveEntry: %v", err)
		}
	}
	handler := mcpResourceRecent(deps)

	contents, err := handler(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "journal://recent"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}

	text := contents[0].(mcp.TextResourceContents).Text
	var summaries []map[string]any
	if err := json.Unmarshal([]byte(text), &summaries); err != nil {
		t.Fatalf("unmarshaling summaries: %v", err)
	}
	if len(summaries) != 10 {
		t.Fatalf("got %d summaries, want 10", len(summaries))
	}
}
