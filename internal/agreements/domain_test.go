package agreements

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountLineItems(t *testing.T) {
	items := []LineItem{
		{Status: LineStatusAccepted, Value: 1200},
		{Status: LineStatusAccepted, Value: 800},
		{Status: LineStatusRejected},
		{Status: LineStatusPending},
		{Status: LineStatusReassigned, Value: 500},
		{Status: LineStatusCancelled, Value: 300},
	}
	c := CountLineItems(items)
	require.Equal(t, 2, c.Accepted)
	require.Equal(t, 1, c.Rejected)
	require.Equal(t, 3, c.Pending)
	require.Equal(t, 6, c.Total)
	require.InDelta(t, 2000.0, c.AcceptedValue, 0.001)
	require.True(t, c.Sums())
}

func TestCountsSumsMismatch(t *testing.T) {
	c := Counts{Accepted: 1, Rejected: 1, Pending: 0, Total: 3}
	require.False(t, c.Sums())
}

func TestDeriveSubAgreementStatus(t *testing.T) {
	cases := []struct {
		name   string
		counts Counts
		want   SubAgreementStatus
	}{
		{"empty", Counts{}, SubStatusPending},
		{"all accepted", Counts{Accepted: 3, Total: 3}, SubStatusAccepted},
		{"all rejected", Counts{Rejected: 2, Total: 2}, SubStatusRejected},
		{"mixed responses", Counts{Accepted: 1, Rejected: 1, Pending: 1, Total: 3}, SubStatusPartiallyAccepted},
		{"accepted with pending", Counts{Accepted: 1, Pending: 2, Total: 3}, SubStatusPending},
		{"rejected with pending", Counts{Rejected: 1, Pending: 2, Total: 3}, SubStatusNeedsAttention},
		{"accepted and rejected no pending", Counts{Accepted: 2, Rejected: 1, Total: 3}, SubStatusPartiallyAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveSubAgreementStatus(tc.counts))
		})
	}
}

func TestDeriveAgreementStatus(t *testing.T) {
	cases := []struct {
		name        string
		current     AgreementStatus
		subs        []SubAgreementStatus
		want        AgreementStatus
		wantChanged bool
	}{
		{"draft never derives", AgreementStatusDraft, []SubAgreementStatus{SubStatusAccepted}, AgreementStatusDraft, false},
		{"cancelled never derives", AgreementStatusCancelled, []SubAgreementStatus{SubStatusAccepted}, AgreementStatusCancelled, false},
		{"completed never derives", AgreementStatusCompleted, []SubAgreementStatus{SubStatusPending}, AgreementStatusCompleted, false},
		{"no subs keeps current", AgreementStatusSent, nil, AgreementStatusSent, false},
		{"all pending keeps sent", AgreementStatusSent, []SubAgreementStatus{SubStatusPending, SubStatusPending}, AgreementStatusSent, false},
		{"one responded is in progress", AgreementStatusSent, []SubAgreementStatus{SubStatusAccepted, SubStatusPending}, AgreementStatusInProgress, true},
		{"all responded completes", AgreementStatusInProgress, []SubAgreementStatus{SubStatusAccepted, SubStatusRejected}, AgreementStatusCompleted, true},
		{"needs attention counts as responded", AgreementStatusSent, []SubAgreementStatus{SubStatusNeedsAttention}, AgreementStatusCompleted, true},
		{"in progress stays without change", AgreementStatusInProgress, []SubAgreementStatus{SubStatusAccepted, SubStatusPending}, AgreementStatusInProgress, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, changed := DeriveAgreementStatus(tc.current, tc.subs)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.wantChanged, changed)
		})
	}
}
