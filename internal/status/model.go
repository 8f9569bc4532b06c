package status

import "time"

// Kind identifies a tracked entity type.
type Kind string

const (
	KindAgreement    Kind = "agreement"
	KindSubAgreement Kind = "sub_agreement"
	KindLineItem     Kind = "line_item"
)

// Scope narrows a status lookup or write to a position inside the agreement
// hierarchy. Nil fields act as wildcards on reads.
type Scope struct {
	ParentID       *int64
	CounterpartyID *int64
	OccursOn       *time.Time
}

// Record is one immutable status fact. Rows are never updated or deleted;
// the current status of an entity is the matching record with the latest
// RecordedAt.
type Record struct {
	ID             int64          `json:"id"`
	Kind           Kind           `json:"kind"`
	EntityID       int64          `json:"entity_id"`
	Status         string         `json:"status"`
	CustomStatus   *string        `json:"custom_status,omitempty"`
	ParentID       *int64         `json:"parent_id,omitempty"`
	CounterpartyID *int64         `json:"counterparty_id,omitempty"`
	OccursOn       *time.Time     `json:"occurs_on,omitempty"`
	EffectiveAt    time.Time      `json:"effective_at"`
	RecordedAt     time.Time      `json:"recorded_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// TransitionInput carries everything required to append a status record.
type TransitionInput struct {
	Kind         Kind
	EntityID     int64
	Status       string
	CustomStatus *string
	ActorID      int64
	Scope        Scope
	EffectiveAt  time.Time
	Metadata     map[string]any
	// Description is the human readable activity line. Empty means a
	// generated default.
	Description string
}

// TransitionResult reports the appended record plus the outcome of the
// best-effort activity write. ActivityErr being non-nil never means the
// transition failed; the authoritative record was still written.
type TransitionResult struct {
	Record      Record
	ActivityErr error
}
