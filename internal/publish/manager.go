package publish

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/herald/internal/apperr"
	"github.com/starford/herald/internal/github"
)

// Step names a point in the publish protocol where a transaction can fail.
type Step string

// Protocol steps, in execution order.
const (
	StepResolveBase  Step = "resolve-base"
	StepCreateBranch Step = "create-branch"
	StepProbeFile    Step = "probe-file"
	StepPutFile      Step = "put-file"
)

// StepError records which step of a transaction failed.
type StepError struct {
	Step Step
	// Path is the destination file for per-file steps.
	Path string
	Err  error
}

func (e *StepError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("publish: %s %s: %v", e.Step, e.Path, e.Err)
	}
	return fmt.Sprintf("publish: %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Remote is the subset of the GitHub API the manager drives.
type Remote interface {
	GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error)
	GetBranchRef(ctx context.Context, owner, repo, branch string) (*github.Ref, error)
	CreateBranch(ctx context.Context, owner, repo, branch, sha string) (*github.Ref, error)
	GetContents(ctx context.Context, owner, repo, filePath, ref string) (*github.Content, error)
	PutContents(ctx context.Context, owner, repo, filePath string, req github.PutContentsRequest) (*github.ContentResponse, error)
}

// File is one converted document bound for the remote repository.
type File struct {
	// Source is the store identity the file was converted from.
	Source string
	// Path is the destination path inside the repository.
	Path    string
	Content []byte
}

// FileResult is the outcome of one committed file.
type FileResult struct {
	Source   string `json:"source"`
	Path     string `json:"path"`
	CommitID string `json:"commit_id"`
	Created  bool   `json:"created"`
}

// Result describes one transaction. It is returned on failure too, holding
// whatever the transaction got through before the failing step.
type Result struct {
	StartedAt  time.Time    `json:"started_at"`
	Branch     string       `json:"branch"`
	BaseBranch string       `json:"base_branch,omitempty"`
	BaseSHA    string       `json:"base_sha,omitempty"`
	Files      []FileResult `json:"files"`
}

// CommitID returns the commit of the last written file, or "".
func (r *Result) CommitID() string {
	if r == nil || len(r.Files) == 0 {
		return ""
	}
	return r.Files[len(r.Files)-1].CommitID
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for branch names.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager runs publish transactions against one repository.
type Manager struct {
	remote Remote
	cfg    RepoConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager.
func NewManager(remote Remote, cfg RepoConfig, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{remote: remote, cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the repository configuration.
func (m *Manager) Config() RepoConfig { return m.cfg }

// Publish pushes files to a fresh branch. Steps run in order and the first
// failure aborts the rest; nothing already created is rolled back.
//
// A configuration error returns a nil Result and wraps apperr.ErrConfig;
// no request is made in that case. Every other failure returns a non-nil
// Result carrying the branch name together with a *StepError.
func (m *Manager) Publish(ctx context.Context, files []File) (*Result, error) {
	if m.remote == nil {
		return nil, fmt.Errorf("%w: remote client not configured", apperr.ErrConfig)
	}
	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apperr.ErrNothingToPublish
	}

	started := m.now().UTC()
	res := &Result{StartedAt: started, Branch: BranchName(m.cfg.BranchRoot, started)}
	log := m.logger.With(slog.String("branch", res.Branch))

	if err := m.resolveBase(ctx, res); err != nil {
		return res, err
	}

	if _, err := m.remote.CreateBranch(ctx, m.cfg.Owner, m.cfg.Repo, res.Branch, res.BaseSHA); err != nil {
		return res, &StepError{Step: StepCreateBranch, Err: err}
	}
	log.Info("publish: branch created", slog.String("base", res.BaseBranch), slog.String("sha", res.BaseSHA))

	for _, f := range files {
		fr, err := m.putFile(ctx, res.Branch, f)
		if err != nil {
			log.Warn("publish: aborting transaction",
				slog.String("path", f.Path),
				slog.Int("committed", len(res.Files)),
				slog.String("error", err.Error()))
			return res, err
		}
		res.Files = append(res.Files, fr)
		log.Debug("publish: file committed", slog.String("path", f.Path), slog.String("commit", fr.CommitID))
	}

	log.Info("publish: transaction complete", slog.Int("files", len(res.Files)))
	return res, nil
}

func (m *Manager) resolveBase(ctx context.Context, res *Result) error {
	base := m.cfg.BaseBranch
	if base == "" {
		repo, err := m.remote.GetRepository(ctx, m.cfg.Owner, m.cfg.Repo)
		if err != nil {
			return &StepError{Step: StepResolveBase, Err: err}
		}
		base = repo.DefaultBranch
	}
	if base == "" {
		return &StepError{Step: StepResolveBase, Err: errors.New("repository has no default branch")}
	}

	ref, err := m.remote.GetBranchRef(ctx, m.cfg.Owner, m.cfg.Repo, base)
	if err != nil {
		return &StepError{Step: StepResolveBase, Err: err}
	}
	res.BaseBranch = base
	res.BaseSHA = ref.Object.SHA
	return nil
}

func (m *Manager) putFile(ctx context.Context, branch string, f File) (FileResult, error) {
	fr := FileResult{Source: f.Source, Path: f.Path}

	var existingSHA string
	existing, err := m.remote.GetContents(ctx, m.cfg.Owner, m.cfg.Repo, f.Path, branch)
	switch {
	case err == nil:
		existingSHA = existing.SHA
	case github.IsNotFound(err):
		fr.Created = true
	default:
		return fr, &StepError{Step: StepProbeFile, Path: f.Path, Err: err}
	}

	message := "Publish " + f.Source
	if !fr.Created {
		message = "Update " + f.Source
	}
	out, err := m.remote.PutContents(ctx, m.cfg.Owner, m.cfg.Repo, f.Path, github.PutContentsRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(f.Content),
		Branch:  branch,
		SHA:     existingSHA,
	})
	if err != nil {
		return fr, &StepError{Step: StepPutFile, Path: f.Path, Err: err}
	}
	fr.CommitID = out.Commit.SHA
	return fr, nil
}
