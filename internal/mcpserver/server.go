// Package mcpserver exposes tracking and publishing as MCP (Model Context
// Protocol) tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/herald/internal/apperr"
	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/publisher"
	"github.com/starford/herald/internal/reconcile"
	"github.com/starford/herald/internal/tracking"
)

// HeaderFormatURI names the header format resource.
const HeaderFormatURI = "herald://header-format"

// HeaderFormat documents how a note opts into publishing.
const HeaderFormat = `# Herald header format

A note is tracked when its leading header block contains ` + "`publish: true`" + `:

    ---
    publish: true
    title: My Post
    tags: [go, notes]
    ---
    Body text.

- The block starts and ends with a line holding only ` + "`---`" + `.
- Each line is ` + "`key: value`" + `; lines without a colon are ignored.
- ` + "`true`" + ` and ` + "`false`" + ` (any case) are booleans, ` + "`[a, b]`" + ` and indented ` + "`- item`" + ` lines are lists, everything else is a string.
- The filename on the remote side is a slug of ` + "`title`" + `, or of the note's name when there is no title.
`

// Tracker is the part of the reconciliation engine the tools use.
type Tracker interface {
	Refresh(ctx context.Context) (reconcile.Result, error)
	List(modifiedOnly bool) []models.TrackedNote
	Get(path string) (models.TrackedNote, bool)
}

// Publisher runs one publish action.
type Publisher interface {
	Publish(ctx context.Context, req publisher.Request) (*publisher.Report, error)
}

// Server wraps the MCP server with Herald tools.
type Server struct {
	mcp     *server.MCPServer
	tracker Tracker
	pub     Publisher
}

// New creates a new MCP server with all tools registered.
func New(tracker Tracker, pub Publisher, version string) *Server {
	s := &Server{tracker: tracker, pub: pub}

	s.mcp = server.NewMCPServer(
		"Herald",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_tracked_notes",
		mcp.WithDescription("List notes carrying publish: true, with their modified flag and last publish time."),
		mcp.WithBoolean("modified_only", mcp.Description("Only list notes with unpublished changes")),
	), s.listTrackedNotes)

	s.mcp.AddTool(mcp.NewTool("get_publication_history",
		mcp.WithDescription("Return the last publish attempts recorded for a tracked note, oldest first."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.getPublicationHistory)

	s.mcp.AddTool(mcp.NewTool("refresh_index",
		mcp.WithDescription("Rescan the vault and rebuild the tracked-note set."),
	), s.refreshIndex)

	s.mcp.AddTool(mcp.NewTool("publish_notes",
		mcp.WithDescription("Publish tracked notes to the remote repository on a new branch. "+
			"By default only modified notes are sent."),
		mcp.WithBoolean("all", mcp.Description("Publish every tracked note, not only modified ones")),
		mcp.WithString("paths", mcp.Description("Optional comma-separated list of note paths to publish")),
	), s.publishNotes)

	s.mcp.AddResource(
		mcp.NewResource(HeaderFormatURI, "Header Format",
			mcp.WithResourceDescription("How a Markdown note opts into publishing."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readHeaderFormat,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listTrackedNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes := s.tracker.List(req.GetBool("modified_only", false))
	if len(notes) == 0 {
		return mcp.NewToolResultText("no tracked notes"), nil
	}

	var b strings.Builder
	for _, n := range notes {
		state := "published"
		if n.Modified {
			state = "modified"
		}
		fmt.Fprintf(&b, "%s\t%s", n.Path, state)
		if n.LastPublishedAt != nil {
			fmt.Fprintf(&b, "\t%s", n.LastPublishedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		b.WriteByte('\n')
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) getPublicationHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, ok := s.tracker.Get(path)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not tracked: %s", path)), nil
	}
	history := note.History
	if history == nil {
		history = []models.PublicationEvent{}
	}
	out, _ := json.MarshalIndent(history, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) refreshIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.tracker.Refresh(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res.Skipped {
		return mcp.NewToolResultText("refresh already running"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("scanned %d, tracked %d (+%d, -%d), failed %d",
		res.Scanned, res.Tracked, res.Added, res.Removed, res.Failed)), nil
}

func (s *Server) publishNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pr := publisher.Request{All: req.GetBool("all", false)}
	for _, p := range strings.Split(req.GetString("paths", ""), ",") {
		if p = strings.TrimSpace(p); p != "" {
			pr.Paths = append(pr.Paths, p)
		}
	}

	report, err := s.pub.Publish(ctx, pr)
	if errors.Is(err, apperr.ErrNothingToPublish) {
		return mcp.NewToolResultText("nothing to publish"), nil
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%v\n%s", err, out)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readHeaderFormat(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      HeaderFormatURI,
			MIMEType: "text/markdown",
			Text:     HeaderFormat,
		},
	}, nil
}

type engineTracker struct {
	*reconcile.Engine
	*tracking.Index
}

// EngineTracker adapts a reconciliation engine and its index to Tracker.
func EngineTracker(e *reconcile.Engine) Tracker {
	return engineTracker{Engine: e, Index: e.Index()}
}
