// Package githubtest provides an in-memory GitHub REST server covering the
// endpoints the publish protocol uses.
package githubtest

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/starford/herald/internal/github"
)

// Request is one request observed by the server.
type Request struct {
	Method string
	Path   string
}

// Server is a fake GitHub repository behind an httptest TLS server.
type Server struct {
	*httptest.Server

	Owner         string
	Repo          string
	DefaultBranch string

	mu       sync.Mutex
	refs     map[string]string            // branch -> commit sha
	files    map[string]map[string]string // branch -> path -> content
	requests []Request
	failPut  map[string]int // path -> status code
	commits  int
}

// NewServer starts a server with a single default branch at commit "base".
// It is closed on test cleanup.
func NewServer(t *testing.T, owner, repo, defaultBranch string) *Server {
	t.Helper()
	s := &Server{
		Owner:         owner,
		Repo:          repo,
		DefaultBranch: defaultBranch,
		refs:          map[string]string{defaultBranch: "base"},
		files:         map[string]map[string]string{defaultBranch: {}},
		failPut:       make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(s.record)
	r.Route("/repos/{owner}/{repo}", func(r chi.Router) {
		r.Get("/", s.getRepository)
		r.Get("/git/refs/heads/*", s.getRef)
		r.Post("/git/refs", s.createRef)
		r.Get("/contents/*", s.getContents)
		r.Put("/contents/*", s.putContents)
	})

	s.Server = httptest.NewTLSServer(r)
	t.Cleanup(s.Close)
	return s
}

// Client returns a github.Client pointed at the server.
func (s *Server) Client(t *testing.T) *github.Client {
	t.Helper()
	c, err := github.NewClient(github.Config{
		BaseURL:    s.URL,
		Token:      "test-token",
		HTTPClient: s.Server.Client(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("github.NewClient: %v", err)
	}
	return c
}

// SeedFile places a file on a branch.
func (s *Server) SeedFile(branch, path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[branch][path] = content
}

// FailPut makes writes to path fail with the given status code.
func (s *Server) FailPut(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut[path] = status
}

// Branches returns every branch name except the default.
func (s *Server) Branches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for b := range s.refs {
		if b != s.DefaultBranch {
			out = append(out, b)
		}
	}
	return out
}

// File returns the content of path on branch.
func (s *Server) File(branch, path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.files[branch][path]
	return c, ok
}

// Requests returns a copy of the request log.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path})
		s.mu.Unlock()

		if r.Header.Get("Authorization") == "" {
			writeError(w, http.StatusUnauthorized, "Requires authentication")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) matches(r *http.Request) bool {
	return chi.URLParam(r, "owner") == s.Owner && chi.URLParam(r, "repo") == s.Repo
}

func (s *Server) getRepository(w http.ResponseWriter, r *http.Request) {
	if !s.matches(r) {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"full_name":      s.Owner + "/" + s.Repo,
		"default_branch": s.DefaultBranch,
	})
}

func (s *Server) getRef(w http.ResponseWriter, r *http.Request) {
	branch := chi.URLParam(r, "*")
	s.mu.Lock()
	sha, ok := s.refs[branch]
	s.mu.Unlock()
	if !s.matches(r) || !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, refBody(branch, sha))
}

func (s *Server) createRef(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !strings.HasPrefix(body.Ref, "refs/heads/") {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request")
		return
	}
	branch := strings.TrimPrefix(body.Ref, "refs/heads/")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.refs[branch]; exists {
		writeError(w, http.StatusUnprocessableEntity, "Reference already exists")
		return
	}
	from := ""
	for b, sha := range s.refs {
		if sha == body.SHA {
			from = b
			break
		}
	}
	if from == "" {
		writeError(w, http.StatusUnprocessableEntity, "Object does not exist")
		return
	}
	s.refs[branch] = body.SHA
	s.files[branch] = make(map[string]string)
	for p, c := range s.files[from] {
		s.files[branch][p] = c
	}
	writeJSON(w, http.StatusCreated, refBody(branch, body.SHA))
}

func (s *Server) getContents(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	branch := r.URL.Query().Get("ref")
	if branch == "" {
		branch = s.DefaultBranch
	}
	s.mu.Lock()
	content, ok := s.files[branch][path]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path, "sha": blobSHA(content)})
}

func (s *Server) putContents(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	var body github.PutContentsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "content is not valid Base64")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if status, fail := s.failPut[path]; fail {
		writeError(w, status, "simulated failure")
		return
	}
	files, ok := s.files[body.Branch]
	if !ok {
		writeError(w, http.StatusNotFound, "Branch not found")
		return
	}
	if existing, exists := files[path]; exists && body.SHA != blobSHA(existing) {
		writeError(w, http.StatusConflict, fmt.Sprintf("%s does not match", path))
		return
	}
	files[path] = string(decoded)
	s.commits++
	commit := fmt.Sprintf("commit-%d", s.commits)
	s.refs[body.Branch] = commit

	writeJSON(w, http.StatusOK, map[string]any{
		"content": map[string]string{"path": path, "sha": blobSHA(string(decoded))},
		"commit":  map[string]string{"sha": commit, "message": body.Message},
	})
}

func refBody(branch, sha string) map[string]any {
	return map[string]any{
		"ref":    "refs/heads/" + branch,
		"object": map[string]string{"sha": sha, "type": "commit"},
	}
}

func blobSHA(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
