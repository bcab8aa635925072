package http

import (
	"io"
	"net/http"

	"github.com/aussiebroadwan/emstore/internal/devserver/service"
	"github.com/aussiebroadwan/emstore/pkg/authsdk"
	"github.com/aussiebroadwan/emstore/pkg/httpx"
)

// maxMultipartMemory is how much of an upload is held in memory before
// spilling to temporary files.
const maxMultipartMemory = 32 << 20

type CampaignsHandler struct {
	CampaignService *service.CampaignService
}

// HandleCreate godoc
//
//	@Summary		Create campaign
//	@Description	The mailbox password is stored encrypted and never returned.
//	@Tags			Campaigns
//	@Security		BearerAuth
//	@Security		CSRFToken
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.CampaignRequest	true	"Campaign"
//	@Success		201		{object}	authsdk.Campaign
//	@Failure		400		{object}	authsdk.APIError	"Validation failed"
//	@Failure		401		{object}	authsdk.APIError	"Not authenticated"
//	@Failure		403		{object}	authsdk.APIError	"CSRF check failed"
//	@Router			/api/campaigns/ [post].
func (h *CampaignsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CampaignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WithDetail(err.Error()).WriteError(w)
		return
	}

	c, err := h.CampaignService.Create(r.Context(), httpx.UserIDFromContext(r.Context()), service.CampaignInput{
		Name:     req.Name,
		Subject:  req.Subject,
		Body:     req.Body,
		Email:    req.Email,
		Password: req.Password,
		Provider: req.Provider,
		IMAPHost: req.IMAPHost,
		IMAPPort: req.IMAPPort,
		SMTPHost: req.SMTPHost,
		SMTPPort: req.SMTPPort,
		UseSSL:   req.UseSSL,
		Notes:    req.Notes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toCampaign(c))
}

// HandleList godoc
//
//	@Summary		List campaigns
//	@Tags			Campaigns
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{array}		authsdk.Campaign
//	@Failure		401	{object}	authsdk.APIError	"Not authenticated"
//	@Router			/api/campaigns/ [get].
func (h *CampaignsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.CampaignService.List(r.Context(), httpx.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]authsdk.Campaign, 0, len(list))
	for _, c := range list {
		out = append(out, toCampaign(c))
	}
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleGet godoc
//
//	@Summary		Get campaign
//	@Tags			Campaigns
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"Campaign ID"
//	@Success		200	{object}	authsdk.Campaign
//	@Failure		404	{object}	authsdk.APIError	"Unknown campaign or owned by someone else"
//	@Router			/api/campaigns/{id}/ [get].
func (h *CampaignsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.CampaignService.Get(r.Context(), httpx.UserIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, toCampaign(c))
}

// HandleCheck godoc
//
//	@Summary		Campaign summary
//	@Description	Reports whether the user has created any campaigns yet.
//	@Tags			Campaigns
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.CampaignSummary
//	@Router			/api/campaigns/check_user_campaigns/ [get].
func (h *CampaignsHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	n, err := h.CampaignService.Count(r.Context(), httpx.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.CampaignSummary{HasCampaigns: n > 0, Count: n})
}

// HandleUpload godoc
//
//	@Summary		Upload attachments
//	@Description	Multipart form with one or more parts named "files".
//	@Tags			Campaigns
//	@Security		BearerAuth
//	@Security		CSRFToken
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			id		path		string	true	"Campaign ID"
//	@Param			files	formData	file	true	"Attachment"
//	@Success		201		{array}		authsdk.Attachment
//	@Failure		400		{object}	authsdk.APIError	"No files"
//	@Failure		404		{object}	authsdk.APIError	"Unknown campaign"
//	@Failure		413		{object}	authsdk.APIError	"File too large"
//	@Router			/api/campaigns/{id}/upload_attachments/ [post].
func (h *CampaignsHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		authsdk.ErrInvalidRequest.WithDetail("expected a multipart form").WriteError(w)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	limit := h.CampaignService.MaxAttachmentSize
	if limit <= 0 {
		limit = service.DefaultMaxAttachmentSize
	}

	var uploads []service.Upload
	for _, fh := range r.MultipartForm.File["files"] {
		if fh.Size > limit {
			writeServiceError(w, r, service.ErrTooLarge)
			return
		}
		f, err := fh.Open()
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, limit+1))
		_ = f.Close()
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		uploads = append(uploads, service.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	atts, err := h.CampaignService.AddAttachments(r.Context(), httpx.UserIDFromContext(r.Context()), r.PathValue("id"), uploads)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAttachments(atts))
}
