// Package searchengine declares the contract a concrete search backend
// must satisfy to be driven by a Job. No implementation lives here: the
// spec that defines this contract explicitly scopes concrete search
// backends out, leaving them to whatever collaborator owns indexed or
// realtime search on a given platform.
package searchengine

import "context"

// QueryType selects what a search matches against.
type QueryType string

const (
	Filename QueryType = "filename"
	Content  QueryType = "content"
	App      QueryType = "app"
	OCR      QueryType = "ocr"
)

// Mechanism selects how a search is carried out.
type Mechanism string

const (
	Indexed  Mechanism = "indexed"
	Realtime Mechanism = "realtime"
)

// Options narrows a Query's matching behavior and result shape.
type Options struct {
	CaseSensitive bool
	Regex         bool
	Fuzzy         bool
	Pinyin        bool
	MaxResults    int
	Paths         []string
	ExcludePaths  []string
	FileFilters   []string
	Timeout       int // seconds; 0 means no timeout
}

// Query describes one search request.
type Query struct {
	Text      string
	Type      QueryType
	Mechanism Mechanism
	Options   Options
}

// Result is one match. Metadata carries subtype-specific fields (e.g.
// an OCR result's matched region, a content result's surrounding
// snippet) that don't warrant their own Result field.
type Result struct {
	DisplayName  string
	URI          string
	LastModified int64 // unix seconds
	Relevance    float64
	Metadata     map[string]any
}

// Engine is implemented by a concrete search backend. A Job that wraps
// an Engine relays Search's result channel as DATA replies and the
// channel's close as a RESULT, and maps Pause/Resume/Cancel onto its
// own state machine transitions of the same name.
type Engine interface {
	// Search runs query and streams matches on the returned channel,
	// closing it when the search completes, is canceled, or ctx is done.
	Search(ctx context.Context, query Query) (<-chan Result, error)

	// Pause suspends an in-progress search. Pause on a non-running
	// search is a no-op.
	Pause()
	// Resume continues a paused search. Resume on a non-paused search
	// is a no-op.
	Resume()
	// Cancel stops an in-progress or paused search; its Result channel
	// closes without further sends.
	Cancel()

	// Status reports the engine's current lifecycle state, using the
	// same vocabulary as job.State.
	Status() string
	// Progress reports completion percentage, 0-100.
	Progress() int
}
