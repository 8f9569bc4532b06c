package agreements

import "time"

// Agreement lifecycle statuses.
type AgreementStatus string

const (
	AgreementStatusDraft      AgreementStatus = "draft"
	AgreementStatusSent       AgreementStatus = "sent"
	AgreementStatusInProgress AgreementStatus = "in-progress"
	AgreementStatusCompleted  AgreementStatus = "completed"
	AgreementStatusCancelled  AgreementStatus = "cancelled"
)

// SubAgreement derived statuses.
type SubAgreementStatus string

const (
	SubStatusPending           SubAgreementStatus = "pending"
	SubStatusAccepted          SubAgreementStatus = "accepted"
	SubStatusRejected          SubAgreementStatus = "rejected"
	SubStatusPartiallyAccepted SubAgreementStatus = "partially-accepted"
	SubStatusNeedsAttention    SubAgreementStatus = "needs-attention"
	SubStatusCancelled         SubAgreementStatus = "cancelled"
)

// Line item statuses.
type LineItemStatus string

const (
	LineStatusPending    LineItemStatus = "pending"
	LineStatusAccepted   LineItemStatus = "accepted"
	LineStatusRejected   LineItemStatus = "rejected"
	LineStatusReassigned LineItemStatus = "reassigned"
	LineStatusCancelled  LineItemStatus = "cancelled"
)

// Agreement is the top-level multi-party scheduling contract. Status is
// derived and cached; the sync engine is its only writer.
type Agreement struct {
	ID                 int64
	Title              string
	IssuerID           int64
	Status             AgreementStatus
	CancelledBy        *int64
	CancelledAt        *time.Time
	CancellationReason *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SubAgreement is the portion of an Agreement pertaining to one counter-party.
// Counts and status are owned exclusively by the sync engine.
type SubAgreement struct {
	ID                 int64
	AgreementID        int64
	CounterpartyID     int64
	Status             SubAgreementStatus
	AcceptedCount      int
	RejectedCount      int
	PendingCount       int
	TotalCount         int
	TotalAcceptedValue float64
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// LineItem is one dated unit of work within a SubAgreement.
type LineItem struct {
	ID             int64
	SubAgreementID int64
	OccursOn       time.Time
	Value          float64
	Status         LineItemStatus
	ResponseNotes  *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Counts aggregates line item statuses for one SubAgreement.
type Counts struct {
	Accepted      int
	Rejected      int
	Pending       int
	Total         int
	AcceptedValue float64
}

// Sums reports whether the buckets add up to the total. A mismatch means a
// line item carried a status outside the vocabulary, which indicates data
// corruption.
func (c Counts) Sums() bool {
	return c.Accepted+c.Rejected+c.Pending == c.Total
}

// CountLineItems tallies items by status. Reassigned and cancelled items keep
// their slot open and land in the pending bucket; only accepted items
// contribute to the accepted value.
func CountLineItems(items []LineItem) Counts {
	var c Counts
	c.Total = len(items)
	for _, item := range items {
		switch item.Status {
		case LineStatusAccepted:
			c.Accepted++
			c.AcceptedValue += item.Value
		case LineStatusRejected:
			c.Rejected++
		case LineStatusPending, LineStatusReassigned, LineStatusCancelled:
			c.Pending++
		}
	}
	return c
}

// DeriveSubAgreementStatus maps counts to the SubAgreement status. The
// partially-accepted check runs before needs-attention so any non-zero
// acceptance wins over a needs-attention classification.
func DeriveSubAgreementStatus(c Counts) SubAgreementStatus {
	switch {
	case c.Total == 0:
		return SubStatusPending
	case c.Accepted == c.Total:
		return SubStatusAccepted
	case c.Rejected == c.Total:
		return SubStatusRejected
	case c.Accepted > 0 && c.Rejected > 0:
		return SubStatusPartiallyAccepted
	case c.Rejected > 0 && c.Accepted == 0:
		return SubStatusNeedsAttention
	default:
		return SubStatusPending
	}
}

// DeriveAgreementStatus computes the agreement status from its sub-agreement
// statuses. Only sent and in-progress agreements re-derive; draft, completed
// and cancelled are manual or terminal and are never overridden bottom-up.
// The second return reports whether the status changed.
func DeriveAgreementStatus(current AgreementStatus, subs []SubAgreementStatus) (AgreementStatus, bool) {
	if current != AgreementStatusSent && current != AgreementStatusInProgress {
		return current, false
	}
	if len(subs) == 0 {
		return current, false
	}
	responded := 0
	for _, s := range subs {
		if s != SubStatusPending {
			responded++
		}
	}
	switch {
	case responded == len(subs):
		return AgreementStatusCompleted, current != AgreementStatusCompleted
	case responded > 0:
		return AgreementStatusInProgress, current != AgreementStatusInProgress
	default:
		return current, false
	}
}
