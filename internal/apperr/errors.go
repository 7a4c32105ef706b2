// Package apperr holds the sentinel errors shared across Herald packages.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConfig marks a missing or invalid repository reference or credential.
	// It is returned before any network call is made and is never retried.
	ErrConfig = errors.New("invalid configuration")
	// ErrNothingToPublish is returned when a publish selects no notes.
	ErrNothingToPublish = errors.New("nothing to publish")
)
