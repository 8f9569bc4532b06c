package agreements

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// AgreementSummary answers "what is the current state of this whole
// agreement". Values come straight from the cached fields the sync engine
// last persisted; no re-derivation happens on the read path.
type AgreementSummary struct {
	AgreementID        int64           `json:"agreement_id"`
	Title              string          `json:"title"`
	Status             AgreementStatus `json:"status"`
	Counterparties     int             `json:"counterparties"`
	Responded          int             `json:"responded"`
	FullyAccepted      int             `json:"fully_accepted"`
	PartiallyAccepted  int             `json:"partially_accepted"`
	FullyRejected      int             `json:"fully_rejected"`
	NeedsAttention     int             `json:"needs_attention"`
	ResponseRate       float64         `json:"response_rate"`
	LineItemsTotal     int             `json:"line_items_total"`
	LineItemsAccepted  int             `json:"line_items_accepted"`
	LineItemsRejected  int             `json:"line_items_rejected"`
	LineItemsPending   int             `json:"line_items_pending"`
	TotalAcceptedValue float64         `json:"total_accepted_value"`
}

// SummaryCache is a read-through cache for summaries.
type SummaryCache interface {
	SummaryInvalidator
	Get(ctx context.Context, agreementID int64) (AgreementSummary, bool)
	Set(ctx context.Context, summary AgreementSummary)
}

// Summary aggregates the cached counts and statuses of the whole agreement.
func (s *Service) Summary(ctx context.Context, agreementID int64) (AgreementSummary, error) {
	if cache, ok := s.cache.(SummaryCache); ok {
		if summary, hit := cache.Get(ctx, agreementID); hit {
			return summary, nil
		}
	}

	agr, err := s.repo.GetAgreement(ctx, agreementID)
	if err != nil {
		return AgreementSummary{}, err
	}
	subs, err := s.repo.ListSubAgreements(ctx, agreementID)
	if err != nil {
		return AgreementSummary{}, err
	}

	summary := AgreementSummary{
		AgreementID:    agr.ID,
		Title:          agr.Title,
		Status:         agr.Status,
		Counterparties: len(subs),
	}
	for _, sub := range subs {
		switch sub.Status {
		case SubStatusAccepted:
			summary.FullyAccepted++
		case SubStatusPartiallyAccepted:
			summary.PartiallyAccepted++
		case SubStatusRejected:
			summary.FullyRejected++
		case SubStatusNeedsAttention:
			summary.NeedsAttention++
		}
		if sub.Status != SubStatusPending {
			summary.Responded++
		}
		summary.LineItemsTotal += sub.TotalCount
		summary.LineItemsAccepted += sub.AcceptedCount
		summary.LineItemsRejected += sub.RejectedCount
		summary.LineItemsPending += sub.PendingCount
		summary.TotalAcceptedValue += sub.TotalAcceptedValue
	}
	if summary.Counterparties > 0 {
		summary.ResponseRate = float64(summary.Responded) / float64(summary.Counterparties)
	}

	if cache, ok := s.cache.(SummaryCache); ok {
		cache.Set(ctx, summary)
	}
	return summary, nil
}

// ExportSummary renders the summary as a single-row CSV for reporting
// collaborators.
func (s *Service) ExportSummary(ctx context.Context, agreementID int64) ([]byte, error) {
	summary, err := s.Summary(ctx, agreementID)
	if err != nil {
		return nil, err
	}

	printer := message.NewPrinter(language.English)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{
		"agreement_id", "title", "status", "counterparties", "responded",
		"fully_accepted", "partially_accepted", "fully_rejected", "needs_attention",
		"response_rate", "line_items_total", "line_items_accepted",
		"line_items_rejected", "line_items_pending", "total_accepted_value",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	row := []string{
		strconv.FormatInt(summary.AgreementID, 10),
		summary.Title,
		string(summary.Status),
		strconv.Itoa(summary.Counterparties),
		strconv.Itoa(summary.Responded),
		strconv.Itoa(summary.FullyAccepted),
		strconv.Itoa(summary.PartiallyAccepted),
		strconv.Itoa(summary.FullyRejected),
		strconv.Itoa(summary.NeedsAttention),
		printer.Sprintf("%.2f", summary.ResponseRate),
		strconv.Itoa(summary.LineItemsTotal),
		strconv.Itoa(summary.LineItemsAccepted),
		strconv.Itoa(summary.LineItemsRejected),
		strconv.Itoa(summary.LineItemsPending),
		printer.Sprintf("%.2f", summary.TotalAcceptedValue),
	}
	if err := w.Write(row); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
