// Package uploader turns a batch of user-selected files into a tracked
// queue of independent upload operations, drives them concurrently,
// and reconciles their terminal outcomes into one batch result.
package uploader

// Phase is an upload item's position in its lifecycle.
type Phase string

// Item lifecycle: queued -> in-flight -> succeeded | failed.
// succeeded and failed are terminal; an item never leaves them.
const (
	PhaseQueued    Phase = "queued"
	PhaseInFlight  Phase = "in-flight"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// Terminal reports whether the phase admits no further transition.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// Item tracks one file's journey through a batch. ID is unique within
// the batch and stable across phase changes; it is the sole key used
// to locate and update the entry.
type Item struct {
	ID     string
	Path   string // local file path as selected by the user
	Name   string // display name sent to the server
	Size   int64
	Phase  Phase
	Detail string // outcome message; always set on failure
}
