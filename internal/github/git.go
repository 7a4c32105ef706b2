package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// GetRepository returns repository metadata, including the default branch.
func (client *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	var repository Repository
	path := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo))
	if err := client.get(ctx, path, &repository); err != nil {
		return nil, fmt.Errorf("getting repository %s/%s: %w", owner, repo, err)
	}
	return &repository, nil
}

// GetBranchRef returns the head reference of a branch.
func (client *Client) GetBranchRef(ctx context.Context, owner, repo, branch string) (*Ref, error) {
	var ref Ref
	path := fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", url.PathEscape(owner), url.PathEscape(repo), escapePath(branch))
	if err := client.get(ctx, path, &ref); err != nil {
		return nil, fmt.Errorf("getting ref heads/%s in %s/%s: %w", branch, owner, repo, err)
	}
	return &ref, nil
}

// CreateBranch creates refs/heads/{branch} pointing at sha.
func (client *Client) CreateBranch(ctx context.Context, owner, repo, branch, sha string) (*Ref, error) {
	var ref Ref
	request := struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}{Ref: "refs/heads/" + branch, SHA: sha}

	path := fmt.Sprintf("/repos/%s/%s/git/refs", url.PathEscape(owner), url.PathEscape(repo))
	if err := client.post(ctx, path, request, &ref); err != nil {
		return nil, fmt.Errorf("creating branch %s in %s/%s: %w", branch, owner, repo, err)
	}
	return &ref, nil
}

// GetContents returns file metadata at filePath on ref. A missing file is
// reported as an *APIError with status 404; check with IsNotFound.
func (client *Client) GetContents(ctx context.Context, owner, repo, filePath, ref string) (*Content, error) {
	var content Content
	path := fmt.Sprintf("/repos/%s/%s/contents/%s", url.PathEscape(owner), url.PathEscape(repo), escapePath(filePath))
	if ref != "" {
		path += "?ref=" + url.QueryEscape(ref)
	}
	if err := client.get(ctx, path, &content); err != nil {
		return nil, fmt.Errorf("getting contents %s in %s/%s: %w", filePath, owner, repo, err)
	}
	return &content, nil
}

// PutContents creates or updates a file and returns the resulting commit.
func (client *Client) PutContents(ctx context.Context, owner, repo, filePath string, request PutContentsRequest) (*ContentResponse, error) {
	var result ContentResponse
	path := fmt.Sprintf("/repos/%s/%s/contents/%s", url.PathEscape(owner), url.PathEscape(repo), escapePath(filePath))
	if err := client.put(ctx, path, request, &result); err != nil {
		return nil, fmt.Errorf("putting contents %s in %s/%s: %w", filePath, owner, repo, err)
	}
	return &result, nil
}

// escapePath escapes each segment of a slash-separated path.
func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
