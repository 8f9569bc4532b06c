package agreements

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/crewpact/crewpact/internal/shared"
	"github.com/crewpact/crewpact/internal/status"
)

type statusMemRepo struct {
	records []status.Record
	nextID  int64
}

func (r *statusMemRepo) Insert(ctx context.Context, rec status.Record) (status.Record, error) {
	r.nextID++
	rec.ID = r.nextID
	rec.RecordedAt = time.Now()
	r.records = append(r.records, rec)
	return rec, nil
}

func (r *statusMemRepo) Current(ctx context.Context, kind status.Kind, entityID int64, scope status.Scope) (status.Record, error) {
	rows, err := r.History(ctx, kind, entityID, scope, 1, 0)
	if err != nil || len(rows) == 0 {
		return status.Record{}, shared.ErrNotFound
	}
	return rows[0], nil
}

func (r *statusMemRepo) History(ctx context.Context, kind status.Kind, entityID int64, scope status.Scope, limit, offset int) ([]status.Record, error) {
	var out []status.Record
	for _, rec := range r.records {
		if rec.Kind == kind && rec.EntityID == entityID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	statuses := status.NewService(repo.statuses, nil, nil)
	svc := NewService(repo, statuses, nil, nil, nil, nil)
	handler := NewHandler(nil, svc, statuses)

	r := chi.NewRouter()
	handler.MountRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, repo
}

func doJSON(t *testing.T, method, url string, actorID int64, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if actorID > 0 {
		req.Header.Set("X-Actor-ID", fmt.Sprintf("%d", actorID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createAndIssue(t *testing.T, srv *httptest.Server) AgreementResponse {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/agreements", 0, CreateAgreementRequest{Title: "March crewing", IssuerID: 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	agr := decodeBody[AgreementResponse](t, resp)

	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/agreements/%d/issue", srv.URL, agr.ID), 1, IssueAgreementRequest{
		Offers: []OfferRequest{
			{CounterpartyID: 10, Items: []OfferItemRequest{
				{OccursOn: dated(2), Value: 1000},
				{OccursOn: dated(3), Value: 1000},
			}},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeBody[AgreementResponse](t, resp)
}

func TestHandlerCreateValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/agreements", 0, map[string]any{"title": ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerIssueAndRespond(t *testing.T) {
	srv, repo := newTestServer(t)

	agr := createAndIssue(t, srv)
	require.Equal(t, "sent", agr.Status)

	sub := subFor(t, repo, agr.ID, 10)
	item := firstLineItem(t, repo, sub.ID)

	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/line-items/%d/status", srv.URL, item.ID), 10,
		LineItemStatusRequest{Status: "accepted"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody[SyncResultResponse](t, resp)
	require.Equal(t, "accepted", result.LineItem.Status)
	require.Equal(t, 1, result.SubAgreement.AcceptedCount)
	require.False(t, result.NoOp)
}

func TestHandlerRejectsUnknownLineItemStatus(t *testing.T) {
	srv, repo := newTestServer(t)

	agr := createAndIssue(t, srv)
	item := firstLineItem(t, repo, subFor(t, repo, agr.ID, 10).ID)

	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/line-items/%d/status", srv.URL, item.ID), 10,
		map[string]any{"status": "approved"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerRequiresActor(t *testing.T) {
	srv, repo := newTestServer(t)

	agr := createAndIssue(t, srv)
	item := firstLineItem(t, repo, subFor(t, repo, agr.ID, 10).ID)

	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/line-items/%d/status", srv.URL, item.ID), 0,
		LineItemStatusRequest{Status: "accepted"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/agreements/9999", 0, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerSummaryAndCSV(t *testing.T) {
	srv, repo := newTestServer(t)

	agr := createAndIssue(t, srv)
	item := firstLineItem(t, repo, subFor(t, repo, agr.ID, 10).ID)
	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/line-items/%d/status", srv.URL, item.ID), 10,
		LineItemStatusRequest{Status: "accepted"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/agreements/%d/summary", srv.URL, agr.ID), 0, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decodeBody[AgreementSummary](t, resp)
	require.Equal(t, 1, summary.Counterparties)
	require.Equal(t, 1, summary.LineItemsAccepted)
	require.Equal(t, 1, summary.LineItemsPending)

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/agreements/%d/summary.csv", srv.URL, agr.ID), 0, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
}

func TestHandlerHistory(t *testing.T) {
	srv, _ := newTestServer(t)

	agr := createAndIssue(t, srv)

	resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/status/agreement/%d/history", srv.URL, agr.ID), 0, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string][]status.Record](t, resp)
	records := body["records"]
	require.Len(t, records, 2)
	require.Equal(t, "sent", records[0].Status)
	require.Equal(t, "draft", records[1].Status)
}

func TestHandlerCurrentStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	agr := createAndIssue(t, srv)

	resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/status/agreement/%d/current", srv.URL, agr.ID), 0, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	record := decodeBody[status.Record](t, resp)
	require.Equal(t, "sent", record.Status)

	resp = doJSON(t, http.MethodGet, srv.URL+"/status/agreement/99999/current", 0, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerVocabulary(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/status/line_item/vocabulary", 0, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]json.RawMessage](t, resp)

	var vocab status.Vocabulary
	require.NoError(t, json.Unmarshal(body["statuses"], &vocab))
	values := make([]string, 0, len(vocab.Options))
	for _, opt := range vocab.Options {
		values = append(values, opt.Value)
	}
	require.Equal(t, []string{"pending", "accepted", "rejected", "reassigned", "cancelled"}, values)
}

func TestHandlerCancel(t *testing.T) {
	srv, repo := newTestServer(t)

	agr := createAndIssue(t, srv)

	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/agreements/%d/cancel", srv.URL, agr.ID), 1,
		CancelAgreementRequest{Reason: "venue closed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decodeBody[AgreementResponse](t, resp)
	require.Equal(t, "cancelled", cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)

	sub := subFor(t, repo, agr.ID, 10)
	require.Equal(t, SubStatusCancelled, sub.Status)
}
