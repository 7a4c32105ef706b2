// Package models defines the domain types for Herald.
package models

import "time"

// PublishKey is the header key that marks a document as trackable.
const PublishKey = "publish"

// MaxHistory bounds TrackedNote.History; older events are evicted first.
const MaxHistory = 10

// Status is the outcome of one publish attempt.
type Status string

// Publish attempt outcomes.
const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// PublicationEvent records the outcome of one publish attempt for one note.
// Events are appended to a note's history and never modified afterwards.
type PublicationEvent struct {
	AttemptID    string    `json:"attempt_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	BranchName   string    `json:"branch_name"`
	Status       Status    `json:"status"`
	CommitID     string    `json:"commit_id,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	// Fingerprint is the content fingerprint that was sent to the remote.
	// Empty means "whatever the note currently holds".
	Fingerprint string `json:"fingerprint,omitempty"`
}

// TrackedNote is the in-memory record of one document carrying publish: true.
type TrackedNote struct {
	Path                string   `json:"path"`
	Metadata            Metadata `json:"metadata"`
	ContentFingerprint  string   `json:"content_fingerprint"`
	MetadataFingerprint string   `json:"metadata_fingerprint"`
	// PublishedFingerprint is the content fingerprint acknowledged by the last
	// successful publish. A rename clears it so the note stays modified.
	PublishedFingerprint string             `json:"published_fingerprint,omitempty"`
	LastPublishedAt      *time.Time         `json:"last_published_at,omitempty"`
	Modified             bool               `json:"modified"`
	History              []PublicationEvent `json:"history"`
}

// Clone returns a deep copy of n.
func (n TrackedNote) Clone() TrackedNote {
	out := n
	out.Metadata = n.Metadata.Clone()
	if n.LastPublishedAt != nil {
		ts := *n.LastPublishedAt
		out.LastPublishedAt = &ts
	}
	out.History = append([]PublicationEvent(nil), n.History...)
	return out
}

// SnapshotRecord is the durable shape of one TrackedNote.
//
// ContentFingerprint holds the fingerprint acknowledged by the last
// successful publish; it is empty when the note was never published or was
// renamed since.
type SnapshotRecord struct {
	ContentFingerprint  string             `json:"content_fingerprint"`
	LastPublishedAt     *time.Time         `json:"last_published_at,omitempty"`
	MetadataFingerprint string             `json:"metadata_fingerprint"`
	History             []PublicationEvent `json:"publication_history"`
}

// Snapshot maps note identity to its durable record.
type Snapshot map[string]SnapshotRecord

// NoteMetadata is a lightweight representation returned by store list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
