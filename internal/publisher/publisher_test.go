package publisher

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/starford/herald/internal/apperr"
	"github.com/starford/herald/internal/convert"
	"github.com/starford/herald/internal/github/githubtest"
	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/publish"
	"github.com/starford/herald/internal/reconcile"
	"github.com/starford/herald/internal/sse"
	"github.com/starford/herald/internal/testutil"
	"github.com/starford/herald/internal/tracking"
)

type fixture struct {
	vault  string
	srv    *githubtest.Server
	engine *reconcile.Engine
	pub    *Publisher
	events *captureSink
}

type captureSink struct{ events []sse.Event }

func (c *captureSink) Publish(ev sse.Event) { c.events = append(c.events, ev) }

type countRecorder struct{ attempts map[string]int }

func (c *countRecorder) ObservePublish(status string, _ int) { c.attempts[status]++ }

func newFixture(t *testing.T, cfg publish.RepoConfig, conv convert.Converter) *fixture {
	t.Helper()
	vaultDir, store := testutil.TestVault(t)
	srv := githubtest.NewServer(t, "o", "r", "main")

	engine := reconcile.New(tracking.New(testutil.Logger()), store, testutil.TestDB(t), testutil.Logger())
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mgr := publish.NewManager(srv.Client(t), cfg, testutil.Logger(),
		publish.WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}))

	sink := &captureSink{}
	return &fixture{
		vault:  vaultDir,
		srv:    srv,
		engine: engine,
		pub:    New(engine, store, conv, mgr, testutil.Logger(), WithEvents(sink)),
		events: sink,
	}
}

func validConfig() publish.RepoConfig {
	return publish.RepoConfig{Owner: "o", Repo: "r", BranchRoot: "notes", ContentPath: "content/posts"}
}

func (f *fixture) refresh(t *testing.T) {
	t.Helper()
	if _, err := f.engine.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
}

func TestPublish_SuccessClearsModified(t *testing.T) {
	f := newFixture(t, validConfig(), convert.Markdown{})
	testutil.WriteNote(t, f.vault, "a.md", testutil.Published("X"))
	testutil.WriteNote(t, f.vault, "b.md", testutil.Published("Y"))
	f.refresh(t)

	report, err := f.pub.Publish(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if report.Status != models.StatusSuccess || len(report.Published) != 2 {
		t.Fatalf("report = %+v", report)
	}
	if got, ok := f.srv.File(report.Branch, "content/posts/a.md"); !ok || got != "X" {
		t.Errorf("remote a.md = %q, %v", got, ok)
	}

	var attempt string
	for _, p := range []string{"a.md", "b.md"} {
		n, _ := f.engine.Index().Get(p)
		if n.Modified {
			t.Errorf("%s still modified", p)
		}
		if len(n.History) != 1 || n.History[0].Status != models.StatusSuccess {
			t.Fatalf("%s history = %+v", p, n.History)
		}
		if n.History[0].BranchName != report.Branch {
			t.Errorf("%s branch = %q", p, n.History[0].BranchName)
		}
		if attempt == "" {
			attempt = n.History[0].AttemptID
		} else if n.History[0].AttemptID != attempt {
			t.Error("notes in one batch must share the attempt")
		}
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != sse.TypePublishSucceeded {
		t.Errorf("events = %+v", f.events.events)
	}

	// Nothing modified now.
	if _, err := f.pub.Publish(context.Background(), Request{}); !errors.Is(err, apperr.ErrNothingToPublish) {
		t.Errorf("second publish err = %v", err)
	}
}

// Scenario: three documents, the second upload fails. Every note gets a
// failure event on the same branch; the branch and file 1 stay remote.
func TestPublish_MidBatchFailure(t *testing.T) {
	f := newFixture(t, validConfig(), convert.Markdown{})
	for _, p := range []string{"1.md", "2.md", "3.md"} {
		testutil.WriteNote(t, f.vault, p, testutil.Published(p))
	}
	f.refresh(t)
	f.srv.FailPut("content/posts/2.md", http.StatusServiceUnavailable)

	report, err := f.pub.Publish(context.Background(), Request{})
	var stepErr *publish.StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("err = %v, want StepError", err)
	}
	if report.Status != models.StatusFailure || report.Branch == "" {
		t.Fatalf("report = %+v", report)
	}

	for _, p := range []string{"1.md", "2.md", "3.md"} {
		n, _ := f.engine.Index().Get(p)
		if len(n.History) != 1 {
			t.Fatalf("%s history len = %d", p, len(n.History))
		}
		ev := n.History[0]
		if ev.Status != models.StatusFailure || ev.BranchName != report.Branch || ev.ErrorMessage == "" {
			t.Errorf("%s event = %+v", p, ev)
		}
		if !n.Modified {
			t.Errorf("%s must stay modified after failure", p)
		}
	}

	if _, ok := f.srv.File(report.Branch, "content/posts/1.md"); !ok {
		t.Error("file 1 should remain on the remote branch")
	}
	if branches := f.srv.Branches(); len(branches) != 1 {
		t.Errorf("branches = %v", branches)
	}
	if f.events.events[0].Type != sse.TypePublishFailed {
		t.Errorf("event type = %q", f.events.events[0].Type)
	}
}

// Scenario: two notes reduce to post.md. The warning is produced before any
// request, shown here with a configuration that never reaches the network.
func TestPublish_CollisionWarningBeforeNetwork(t *testing.T) {
	cfg := validConfig()
	cfg.Owner = ""
	f := newFixture(t, cfg, convert.Markdown{})
	testutil.WriteNote(t, f.vault, "a/post.md", testutil.Published("A"))
	testutil.WriteNote(t, f.vault, "b/post.md", testutil.Published("B"))
	f.refresh(t)

	report, err := f.pub.Publish(context.Background(), Request{})
	if !errors.Is(err, apperr.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	if len(report.Collisions) != 1 || report.Collisions[0].Path != "content/posts/post.md" {
		t.Fatalf("collisions = %+v", report.Collisions)
	}
	if n := len(f.srv.Requests()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
	n, _ := f.engine.Index().Get("a/post.md")
	if len(n.History) != 0 {
		t.Error("configuration errors do not record history")
	}
}

func TestPublish_CollisionIsNotFatal(t *testing.T) {
	f := newFixture(t, validConfig(), convert.Markdown{})
	testutil.WriteNote(t, f.vault, "a/post.md", testutil.Published("A"))
	testutil.WriteNote(t, f.vault, "b/post.md", testutil.Published("B"))
	f.refresh(t)

	report, err := f.pub.Publish(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(report.Collisions) != 1 {
		t.Errorf("collisions = %+v", report.Collisions)
	}
	if got, _ := f.srv.File(report.Branch, "content/posts/post.md"); got != "B" {
		t.Errorf("post.md = %q, want last writer B", got)
	}
}

func TestPublish_ConversionFailureSkipsNote(t *testing.T) {
	conv := convert.Func(func(content []byte, identity string) (*convert.Document, error) {
		if identity == "bad.md" {
			return nil, errors.New("unsupported syntax")
		}
		return convert.Markdown{}.Convert(content, identity)
	})
	f := newFixture(t, validConfig(), conv)
	testutil.WriteNote(t, f.vault, "good.md", testutil.Published("G"))
	testutil.WriteNote(t, f.vault, "bad.md", testutil.Published("B"))
	f.refresh(t)

	report, err := f.pub.Publish(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Path != "bad.md" {
		t.Errorf("skipped = %+v", report.Skipped)
	}
	if len(report.Published) != 1 || report.Published[0] != "good.md" {
		t.Errorf("published = %v", report.Published)
	}

	bad, _ := f.engine.Index().Get("bad.md")
	if !bad.Modified || len(bad.History) != 0 {
		t.Errorf("skipped note should be untouched: %+v", bad)
	}
}

func TestPublish_AllIncludesUnmodified(t *testing.T) {
	f := newFixture(t, validConfig(), convert.Markdown{})
	testutil.WriteNote(t, f.vault, "a.md", testutil.Published("X"))
	f.refresh(t)
	if _, err := f.pub.Publish(context.Background(), Request{}); err != nil {
		t.Fatalf("first publish: %v", err)
	}

	rec := &countRecorder{attempts: map[string]int{}}
	f.pub.recorder = rec
	report, err := f.pub.Publish(context.Background(), Request{All: true})
	if err != nil {
		t.Fatalf("publish all: %v", err)
	}
	if len(report.Published) != 1 {
		t.Errorf("published = %v", report.Published)
	}
	if rec.attempts["success"] != 1 {
		t.Errorf("recorder = %v", rec.attempts)
	}
	n, _ := f.engine.Index().Get("a.md")
	if len(n.History) != 2 {
		t.Errorf("history len = %d, want 2", len(n.History))
	}
}

func TestPublish_PathsFilter(t *testing.T) {
	f := newFixture(t, validConfig(), convert.Markdown{})
	testutil.WriteNote(t, f.vault, "a.md", testutil.Published("X"))
	testutil.WriteNote(t, f.vault, "b.md", testutil.Published("Y"))
	f.refresh(t)

	report, err := f.pub.Publish(context.Background(), Request{Paths: []string{"b.md", "missing.md"}})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(report.Published) != 1 || report.Published[0] != "b.md" {
		t.Errorf("published = %v", report.Published)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Path != "missing.md" {
		t.Errorf("skipped = %+v", report.Skipped)
	}
	a, _ := f.engine.Index().Get("a.md")
	if !a.Modified {
		t.Error("a.md must not be touched")
	}
}
