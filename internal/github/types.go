package github

// Repository is the subset of a repository resource used for publishing.
type Repository struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

// Ref is a git reference.
type Ref struct {
	Ref    string    `json:"ref"`
	Object RefObject `json:"object"`
}

// RefObject is the object a reference points at.
type RefObject struct {
	SHA  string `json:"sha"`
	Type string `json:"type"`
}

// Content describes a file returned by the contents endpoints.
type Content struct {
	Name string `json:"name"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
}

// CommitInfo identifies a commit created by a contents write.
type CommitInfo struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
	HTMLURL string `json:"html_url"`
}

// ContentResponse is returned by a create-or-update of a file.
type ContentResponse struct {
	Content Content    `json:"content"`
	Commit  CommitInfo `json:"commit"`
}

// PutContentsRequest creates or updates one file on a branch.
type PutContentsRequest struct {
	Message string `json:"message"`
	// Content is the base64-encoded file body.
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	// SHA is the blob SHA of the file being replaced; required for updates.
	SHA string `json:"sha,omitempty"`
}
