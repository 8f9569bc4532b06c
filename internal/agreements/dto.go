package agreements

import "time"

// CreateAgreementRequest creates a draft agreement.
type CreateAgreementRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	IssuerID int64  `json:"issuer_id" validate:"required,gt=0"`
}

// OfferItemRequest is one dated unit of work in an issue request.
type OfferItemRequest struct {
	OccursOn time.Time `json:"occurs_on" validate:"required"`
	Value    float64   `json:"value" validate:"gte=0"`
}

// OfferRequest is the per-counter-party slice of an issue request.
type OfferRequest struct {
	CounterpartyID int64              `json:"counterparty_id" validate:"required,gt=0"`
	Items          []OfferItemRequest `json:"items" validate:"required,min=1,dive"`
}

// IssueAgreementRequest issues a draft agreement to its counter-parties.
type IssueAgreementRequest struct {
	Offers []OfferRequest `json:"offers" validate:"required,min=1,dive"`
}

// LineItemStatusRequest applies a response to one line item.
type LineItemStatusRequest struct {
	Status string  `json:"status" validate:"required,oneof=pending accepted rejected reassigned"`
	Notes  *string `json:"notes" validate:"omitempty,max=2000"`
}

// CancelAgreementRequest cancels an agreement top-down.
type CancelAgreementRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// AgreementResponse is the wire shape of an agreement.
type AgreementResponse struct {
	ID                 int64      `json:"id"`
	Title              string     `json:"title"`
	IssuerID           int64      `json:"issuer_id"`
	Status             string     `json:"status"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// SubAgreementResponse is the wire shape of a sub-agreement.
type SubAgreementResponse struct {
	ID                 int64      `json:"id"`
	AgreementID        int64      `json:"agreement_id"`
	CounterpartyID     int64      `json:"counterparty_id"`
	Status             string     `json:"status"`
	AcceptedCount      int        `json:"accepted_count"`
	RejectedCount      int        `json:"rejected_count"`
	PendingCount       int        `json:"pending_count"`
	TotalCount         int        `json:"total_count"`
	TotalAcceptedValue float64    `json:"total_accepted_value"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// LineItemResponse is the wire shape of a line item.
type LineItemResponse struct {
	ID             int64     `json:"id"`
	SubAgreementID int64     `json:"sub_agreement_id"`
	OccursOn       time.Time `json:"occurs_on"`
	Value          float64   `json:"value"`
	Status         string    `json:"status"`
	ResponseNotes  *string   `json:"response_notes,omitempty"`
}

// SyncResultResponse reports all three levels after a leaf transition.
type SyncResultResponse struct {
	NoOp                   bool                 `json:"no_op"`
	SubStatusChanged       bool                 `json:"sub_status_changed"`
	AgreementStatusChanged bool                 `json:"agreement_status_changed"`
	LineItem               LineItemResponse     `json:"line_item"`
	SubAgreement           SubAgreementResponse `json:"sub_agreement"`
	Agreement              AgreementResponse    `json:"agreement"`
}

func toAgreementResponse(a Agreement) AgreementResponse {
	return AgreementResponse{
		ID:                 a.ID,
		Title:              a.Title,
		IssuerID:           a.IssuerID,
		Status:             string(a.Status),
		CancelledAt:        a.CancelledAt,
		CancellationReason: a.CancellationReason,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toSubAgreementResponse(sub SubAgreement) SubAgreementResponse {
	return SubAgreementResponse{
		ID:                 sub.ID,
		AgreementID:        sub.AgreementID,
		CounterpartyID:     sub.CounterpartyID,
		Status:             string(sub.Status),
		AcceptedCount:      sub.AcceptedCount,
		RejectedCount:      sub.RejectedCount,
		PendingCount:       sub.PendingCount,
		TotalCount:         sub.TotalCount,
		TotalAcceptedValue: sub.TotalAcceptedValue,
		CompletedAt:        sub.CompletedAt,
	}
}

func toLineItemResponse(item LineItem) LineItemResponse {
	return LineItemResponse{
		ID:             item.ID,
		SubAgreementID: item.SubAgreementID,
		OccursOn:       item.OccursOn,
		Value:          item.Value,
		Status:         string(item.Status),
		ResponseNotes:  item.ResponseNotes,
	}
}

func toSyncResultResponse(res SyncResult) SyncResultResponse {
	return SyncResultResponse{
		NoOp:                   res.NoOp,
		SubStatusChanged:       res.SubStatusChanged,
		AgreementStatusChanged: res.AgreementStatusChanged,
		LineItem:               toLineItemResponse(res.LineItem),
		SubAgreement:           toSubAgreementResponse(res.SubAgreement),
		Agreement:              toAgreementResponse(res.Agreement),
	}
}
