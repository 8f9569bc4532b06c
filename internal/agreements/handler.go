package agreements

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/crewpact/crewpact/internal/platform/httpx"
	"github.com/crewpact/crewpact/internal/status"
)

// Handler exposes the agreement JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	statuses *status.Service
	validate *validator.Validate
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service, statuses *status.Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		statuses: statuses,
		validate: validator.New(),
	}
}

// MountRoutes registers agreement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/agreements", h.createAgreement)
	r.Get("/agreements/{id}", h.getAgreement)
	r.Post("/agreements/{id}/issue", h.issueAgreement)
	r.Post("/agreements/{id}/cancel", h.cancelAgreement)
	r.Get("/agreements/{id}/summary", h.getSummary)
	r.Get("/agreements/{id}/summary.csv", h.exportSummary)
	r.Post("/line-items/{id}/status", h.setLineItemStatus)
	r.Get("/status/{kind}/vocabulary", h.getVocabulary)
	r.Get("/status/{kind}/{id}/current", h.getCurrent)
	r.Get("/status/{kind}/{id}/history", h.getHistory)
}

func (h *Handler) createAgreement(w http.ResponseWriter, r *http.Request) {
	var req CreateAgreementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	agr, err := h.service.CreateAgreement(r.Context(), req.Title, req.IssuerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAgreementResponse(agr))
}

func (h *Handler) getAgreement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	agr, err := h.service.GetAgreement(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	subs, err := h.service.repo.ListSubAgreements(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	subResponses := make([]SubAgreementResponse, 0, len(subs))
	for _, sub := range subs {
		subResponses = append(subResponses, toSubAgreementResponse(sub))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"agreement":      toAgreementResponse(agr),
		"sub_agreements": subResponses,
	})
}

func (h *Handler) issueAgreement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	actorID, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req IssueAgreementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	offers := make([]Offer, 0, len(req.Offers))
	for _, offerReq := range req.Offers {
		offer := Offer{CounterpartyID: offerReq.CounterpartyID}
		for _, itemReq := range offerReq.Items {
			offer.Items = append(offer.Items, OfferItem{OccursOn: itemReq.OccursOn, Value: itemReq.Value})
		}
		offers = append(offers, offer)
	}
	agr, err := h.service.Issue(r.Context(), id, actorID, offers)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAgreementResponse(agr))
}

func (h *Handler) cancelAgreement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	actorID, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req CancelAgreementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.CancelAgreement(r.Context(), id, actorID, req.Reason); err != nil {
		httpx.RespondError(w, err)
		return
	}
	agr, err := h.service.GetAgreement(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAgreementResponse(agr))
}

func (h *Handler) setLineItemStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	actorID, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req LineItemStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.SetLineItemStatus(r.Context(), id, LineItemStatus(req.Status), actorID, req.Notes)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSyncResultResponse(result))
}

func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	summary, err := h.service.Summary(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) exportSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	data, err := h.service.ExportSummary(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=agreement-summary.csv")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	kind := status.Kind(chi.URLParam(r, "kind"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.statuses.History(r.Context(), kind, id, status.Scope{}, limit, offset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) getCurrent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	kind := status.Kind(chi.URLParam(r, "kind"))
	record, err := h.statuses.Current(r.Context(), kind, id, status.Scope{})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}

func (h *Handler) getVocabulary(w http.ResponseWriter, r *http.Request) {
	kind := status.Kind(chi.URLParam(r, "kind"))
	httpx.JSON(w, http.StatusOK, map[string]any{
		"kind":     kind,
		"statuses": h.statuses.VocabularyFor(kind),
	})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "path id must be a positive integer")
		return 0, false
	}
	return id, true
}

// actorFrom reads the acting user id passed down by the auth layer. Auth
// itself lives outside this service.
func actorFrom(w http.ResponseWriter, r *http.Request) (int64, bool) {
	actorID, err := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	if err != nil || actorID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Missing Actor", "X-Actor-ID header required")
		return 0, false
	}
	return actorID, true
}
