package activity

import "time"

// Entry is one audit trail record: who did what to which entity. Entries are
// written best effort alongside status transitions and never block them.
type Entry struct {
	ID          int64
	ActorID     int64
	Action      string
	EntityKind  string
	EntityID    int64
	Description string
	Meta        map[string]any
	At          time.Time
}

// TimelineFilters holds the base filters for the activity timeline.
type TimelineFilters struct {
	From       time.Time
	To         time.Time
	ActorID    int64
	EntityKind string
	Action     string
	Page       int
	PageSize   int
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles timeline rows with paging information.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}
