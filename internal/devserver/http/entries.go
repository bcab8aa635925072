package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/emstore/internal/devserver/service"
	"github.com/aussiebroadwan/emstore/pkg/authsdk"
	"github.com/aussiebroadwan/emstore/pkg/httpx"
)

type EntriesHandler struct {
	EntryService *service.EntryService
}

// entryConflict is the 409 body for a single address already on file.
type entryConflict struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// bulkConflict is the 400 body when a bulk request repeats an address.
type bulkConflict struct {
	Error           string   `json:"error"`
	Detail          string   `json:"detail"`
	Status          string   `json:"status"`
	DuplicateEmails []string `json:"duplicate_emails"`
}

// ServeHTTP godoc
//
//	@Summary		Add email entries
//	@Description	Accepts one entry object or an array of entries. A single address
//	@Description	already on file is a 409. In bulk, stored addresses are skipped and
//	@Description	the answer is 207; repeating an address within the request stores
//	@Description	nothing and answers 400 with status duplicate_in_request.
//	@Tags			Email entries
//	@Security		BearerAuth
//	@Security		CSRFToken
//	@Accept			json
//	@Produce		json
//	@Param			campaign_id	query		string						false	"Campaign for bulk entries"
//	@Param			body		body		authsdk.EmailEntryRequest	true	"Entry, or array of entries"
//	@Success		201			{object}	authsdk.EntryResult
//	@Success		207			{object}	authsdk.BulkResult
//	@Failure		400			{object}	authsdk.APIError
//	@Failure		409			{object}	entryConflict
//	@Router			/api/email-entries/ [post].
func (h *EntriesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		authsdk.ErrInvalidRequest.WithDetail(err.Error()).WriteError(w)
		return
	}

	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []authsdk.EmailEntryRequest
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			authsdk.ErrInvalidRequest.WithDetail(fmt.Sprintf("invalid JSON body: %v", err)).WriteError(w)
			return
		}
		h.bulk(w, r, reqs)
		return
	}

	var req authsdk.EmailEntryRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		authsdk.ErrInvalidRequest.WithDetail(fmt.Sprintf("invalid JSON body: %v", err)).WriteError(w)
		return
	}
	if req.CampaignID == "" {
		req.CampaignID = r.URL.Query().Get("campaign_id")
	}
	h.single(w, r, req)
}

func (h *EntriesHandler) single(w http.ResponseWriter, r *http.Request, req authsdk.EmailEntryRequest) {
	e, err := h.EntryService.Add(r.Context(), httpx.UserIDFromContext(r.Context()), toEntryInput(req))
	if err != nil {
		if errors.Is(err, service.ErrDuplicate) {
			httpx.WriteJSON(w, http.StatusConflict, entryConflict{
				Error:  authsdk.CodeConflict,
				Detail: "Email already exists",
				Email:  req.Email,
				Status: authsdk.EntryStatusDuplicate,
			})
			return
		}
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.EntryResult{
		Message: "Email added successfully",
		Email:   e.Email,
		Status:  authsdk.EntryStatusCreated,
	})
}

func (h *EntriesHandler) bulk(w http.ResponseWriter, r *http.Request, reqs []authsdk.EmailEntryRequest) {
	ins := make([]service.EntryInput, len(reqs))
	for i, req := range reqs {
		ins[i] = toEntryInput(req)
	}

	out, err := h.EntryService.AddBulk(r.Context(), httpx.UserIDFromContext(r.Context()), r.URL.Query().Get("campaign_id"), ins)
	if err != nil {
		var dup *service.DuplicateInRequestError
		if errors.As(err, &dup) {
			httpx.WriteJSON(w, http.StatusBadRequest, bulkConflict{
				Error:           authsdk.CodeValidation,
				Detail:          "Duplicate emails in request",
				Status:          authsdk.EntryStatusDuplicateInRequest,
				DuplicateEmails: dup.Emails,
			})
			return
		}
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	msg := fmt.Sprintf("Successfully created %d entries", out.Created)
	if len(out.DuplicateEmails) > 0 {
		status = http.StatusMultiStatus
		msg = fmt.Sprintf("Created %d entries, skipped %d duplicates", out.Created, len(out.DuplicateEmails))
	}

	httpx.WriteJSON(w, status, authsdk.BulkResult{
		Created:         out.Created,
		Duplicates:      len(out.DuplicateEmails),
		DuplicateEmails: out.DuplicateEmails,
		TotalProcessed:  out.TotalProcessed,
		Status:          authsdk.EntryStatusCompleted,
		Message:         msg,
	})
}

func toEntryInput(req authsdk.EmailEntryRequest) service.EntryInput {
	return service.EntryInput{
		Name:        req.Name,
		Email:       req.Email,
		ClientEmail: req.ClientEmail,
		CampaignID:  req.CampaignID,
	}
}
