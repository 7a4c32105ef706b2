package reconcile

import "fmt"

// Kind is the shape of a document store change notification.
type Kind int

// Store event kinds.
const (
	Upserted Kind = iota // created or modified
	Deleted
	Renamed
	// Rescan asks for a full refresh, e.g. after a directory moved.
	Rescan
)

func (k Kind) String() string {
	switch k {
	case Upserted:
		return "upserted"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	case Rescan:
		return "rescan"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one change notification from the document store. OldPath is set
// only for Renamed.
type Event struct {
	Kind    Kind
	Path    string
	OldPath string
}

// Change kinds reported to a Notifier after the index mutates.
const (
	ChangeTracked   = "tracked"
	ChangeUpdated   = "updated"
	ChangeUntracked = "untracked"
	ChangeRenamed   = "renamed"
)

// Notifier is called after each index mutation caused by reconciliation.
type Notifier func(change, path string)

// Recorder receives reconciliation measurements.
type Recorder interface {
	ObserveReconcile(seconds float64)
	SetTracked(n int)
}
