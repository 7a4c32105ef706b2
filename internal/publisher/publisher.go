// Package publisher runs the end-to-end publish use case: select tracked
// notes, convert them, push them in one transaction and record the outcome
// in every note's history.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/herald/internal/apperr"
	"github.com/starford/herald/internal/checksum"
	"github.com/starford/herald/internal/convert"
	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/publish"
	"github.com/starford/herald/internal/reconcile"
	"github.com/starford/herald/internal/sse"
	"github.com/starford/herald/internal/tracking"
)

// Reader reads note content from the document store.
type Reader interface {
	Read(path string) ([]byte, error)
}

// Transactor executes one publish transaction.
type Transactor interface {
	Publish(ctx context.Context, files []publish.File) (*publish.Result, error)
	Config() publish.RepoConfig
}

// EventSink receives publish notifications.
type EventSink interface {
	Publish(event sse.Event)
}

// Recorder receives publish measurements.
type Recorder interface {
	ObservePublish(status string, files int)
}

// Request selects the notes to publish.
type Request struct {
	// All publishes every tracked note instead of only modified ones.
	All bool `json:"all"`
	// Paths restricts the batch to these identities when non-empty.
	Paths []string `json:"paths,omitempty"`
}

// Skip is a note left out of the batch.
type Skip struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Report summarises one publish action.
type Report struct {
	AttemptID  string               `json:"attempt_id,omitempty"`
	Status     models.Status        `json:"status,omitempty"`
	Branch     string               `json:"branch,omitempty"`
	CommitID   string               `json:"commit_id,omitempty"`
	Published  []string             `json:"published"`
	Skipped    []Skip               `json:"skipped,omitempty"`
	Collisions []publish.Collision  `json:"collisions,omitempty"`
	Files      []publish.FileResult `json:"files,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithEvents sends publish.succeeded and publish.failed to sink.
func WithEvents(sink EventSink) Option {
	return func(p *Publisher) { p.events = sink }
}

// WithRecorder registers a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Publisher) { p.recorder = r }
}

// Publisher coordinates conversion and publishing for tracked notes.
type Publisher struct {
	engine   *reconcile.Engine
	reader   Reader
	conv     convert.Converter
	tx       Transactor
	logger   *slog.Logger
	events   EventSink
	recorder Recorder
	newID    func() string

	// mu keeps publish actions from overlapping.
	mu sync.Mutex
}

// New creates a Publisher.
func New(engine *reconcile.Engine, reader Reader, conv convert.Converter, tx Transactor, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		engine: engine,
		reader: reader,
		conv:   conv,
		tx:     tx,
		logger: logger,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type prepared struct {
	files        []publish.File
	fingerprints map[string]string
}

// Publish runs one publish action. Notes that fail to convert are skipped
// and reported; a transaction failure records one failure event on every
// note in the batch. The returned Report is never nil.
func (p *Publisher) Publish(ctx context.Context, req Request) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := &Report{Published: []string{}}
	notes := p.selectNotes(req, report)
	if len(notes) == 0 {
		return report, apperr.ErrNothingToPublish
	}

	batch := p.prepare(notes, report)
	if len(batch.files) == 0 {
		return report, apperr.ErrNothingToPublish
	}

	report.Collisions = publish.DetectCollisions(batch.files)
	for _, c := range report.Collisions {
		p.logger.Warn("publisher: destination collision",
			slog.String("path", c.Path),
			slog.Any("sources", c.Sources))
	}

	res, txErr := p.tx.Publish(ctx, batch.files)
	if errors.Is(txErr, apperr.ErrConfig) {
		report.Status = models.StatusFailure
		report.Error = txErr.Error()
		p.logger.Error("publisher: configuration error", slog.String("error", txErr.Error()))
		return report, txErr
	}

	ev := models.PublicationEvent{
		AttemptID: p.newID(),
		Timestamp: time.Now().UTC(),
		Status:    models.StatusSuccess,
	}
	if res != nil {
		ev.Timestamp = res.StartedAt
		ev.BranchName = res.Branch
		ev.CommitID = res.CommitID()
		report.Files = res.Files
	}
	if txErr != nil {
		ev.Status = models.StatusFailure
		ev.ErrorMessage = txErr.Error()
		report.Error = txErr.Error()
	}
	report.AttemptID = ev.AttemptID
	report.Status = ev.Status
	report.Branch = ev.BranchName
	report.CommitID = ev.CommitID

	err := p.engine.Update(ctx, func(ix *tracking.Index) {
		for _, f := range batch.files {
			e := ev
			e.Fingerprint = batch.fingerprints[f.Source]
			if ev.Status == models.StatusSuccess {
				ix.MarkPublished(f.Source, e)
			} else {
				ix.RecordFailure(f.Source, e)
			}
		}
	})
	if err != nil {
		p.logger.Error("publisher: persist outcome failed", slog.String("error", err.Error()))
	}

	p.report(report)
	return report, errors.Join(txErr, err)
}

// selectNotes picks the batch in index order. Requested paths that are not
// tracked are recorded as skips.
func (p *Publisher) selectNotes(req Request, report *Report) []models.TrackedNote {
	notes := p.engine.Index().List(!req.All && len(req.Paths) == 0)
	if len(req.Paths) == 0 {
		return notes
	}

	want := make(map[string]struct{}, len(req.Paths))
	for _, path := range req.Paths {
		want[path] = struct{}{}
	}
	out := notes[:0]
	for _, n := range notes {
		if _, ok := want[n.Path]; ok {
			out = append(out, n)
			delete(want, n.Path)
		}
	}
	for _, path := range req.Paths {
		if _, missing := want[path]; missing {
			p.skip(report, path, fmt.Errorf("%w: %s is not tracked", apperr.ErrNotFound, path))
			delete(want, path)
		}
	}
	return out
}

// prepare reads and converts each note, recording skips on the report.
func (p *Publisher) prepare(notes []models.TrackedNote, report *Report) prepared {
	contentRoot := p.tx.Config().ContentPath
	batch := prepared{fingerprints: make(map[string]string, len(notes))}

	for _, n := range notes {
		data, err := p.reader.Read(n.Path)
		if err != nil {
			p.skip(report, n.Path, err)
			continue
		}
		doc, err := p.conv.Convert(data, n.Path)
		if err != nil {
			p.skip(report, n.Path, err)
			continue
		}
		batch.files = append(batch.files, publish.File{
			Source:  n.Path,
			Path:    publish.DestinationPath(contentRoot, doc.Filename),
			Content: doc.Content,
		})
		batch.fingerprints[n.Path] = checksum.Sum(data)
		report.Published = append(report.Published, n.Path)
	}
	return batch
}

func (p *Publisher) skip(report *Report, path string, err error) {
	p.logger.Warn("publisher: skipping note", slog.String("path", path), slog.String("error", err.Error()))
	report.Skipped = append(report.Skipped, Skip{Path: path, Error: err.Error()})
}

func (p *Publisher) report(r *Report) {
	log := p.logger.With(
		slog.String("attempt_id", r.AttemptID),
		slog.String("branch", r.Branch),
		slog.Int("notes", len(r.Published)))

	typ := sse.TypePublishSucceeded
	if r.Status == models.StatusSuccess {
		log.Info("publisher: publish succeeded", slog.String("commit", r.CommitID))
	} else {
		typ = sse.TypePublishFailed
		log.Error("publisher: publish failed", slog.String("error", r.Error))
	}

	if p.recorder != nil {
		p.recorder.ObservePublish(string(r.Status), len(r.Files))
	}
	if p.events != nil {
		p.events.Publish(sse.Event{Type: typ, Data: r})
	}
}
