package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/herald/internal/convert"
	"github.com/starford/herald/internal/github/githubtest"
	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/publish"
	"github.com/starford/herald/internal/publisher"
	"github.com/starford/herald/internal/reconcile"
	"github.com/starford/herald/internal/testutil"
	"github.com/starford/herald/internal/tracking"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	vaultDir, store := testutil.TestVault(t)
	engine := reconcile.New(tracking.New(testutil.Logger()), store, testutil.TestDB(t), testutil.Logger())

	srv := githubtest.NewServer(t, "o", "r", "main")
	mgr := publish.NewManager(srv.Client(t),
		publish.RepoConfig{Owner: "o", Repo: "r", BranchRoot: "notes", ContentPath: "content"},
		testutil.Logger())
	pub := publisher.New(engine, store, convert.Markdown{}, mgr, testutil.Logger())

	return New(EngineTracker(engine), pub, "test"), vaultDir
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper, so dispatch to the handlers directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_tracked_notes":
		result, err = srv.listTrackedNotes(ctx, req)
	case "get_publication_history":
		result, err = srv.getPublicationHistory(ctx, req)
	case "refresh_index":
		result, err = srv.refreshIndex(ctx, req)
	case "publish_notes":
		result, err = srv.publishNotes(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestRefreshAndList(t *testing.T) {
	srv, vault := testServer(t)
	testutil.WriteNote(t, vault, "a.md", testutil.Published("X"))
	testutil.WriteNote(t, vault, "draft.md", "no header")

	text := resultText(callTool(t, srv, "refresh_index", map[string]any{}))
	if !strings.HasPrefix(text, "scanned 2, tracked 1") {
		t.Errorf("refresh = %q", text)
	}

	text = resultText(callTool(t, srv, "list_tracked_notes", map[string]any{}))
	if text != "a.md\tmodified" {
		t.Errorf("list = %q", text)
	}
}

func TestPublishAndHistory(t *testing.T) {
	srv, vault := testServer(t)
	testutil.WriteNote(t, vault, "a.md", testutil.Published("X"))
	callTool(t, srv, "refresh_index", map[string]any{})

	r := callTool(t, srv, "publish_notes", map[string]any{"paths": "a.md"})
	if r.IsError {
		t.Fatalf("publish failed: %s", resultText(r))
	}

	r = callTool(t, srv, "get_publication_history", map[string]any{"path": "a.md"})
	var history []models.PublicationEvent
	if err := json.Unmarshal([]byte(resultText(r)), &history); err != nil {
		t.Fatalf("history is not JSON: %v", err)
	}
	if len(history) != 1 || history[0].Status != models.StatusSuccess {
		t.Errorf("history = %+v", history)
	}

	text := resultText(callTool(t, srv, "list_tracked_notes", map[string]any{"modified_only": true}))
	if text != "no tracked notes" {
		t.Errorf("modified list = %q", text)
	}

	text = resultText(callTool(t, srv, "publish_notes", map[string]any{}))
	if text != "nothing to publish" {
		t.Errorf("second publish = %q", text)
	}
}

func TestHistoryUntracked(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_publication_history", map[string]any{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for untracked note")
	}
}

func TestHeaderFormatResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readHeaderFormat(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || !strings.Contains(tc.Text, "publish: true") {
		t.Errorf("resource = %+v", contents)
	}
}
