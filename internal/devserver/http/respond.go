package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aussiebroadwan/emstore/internal/devserver/domain"
	"github.com/aussiebroadwan/emstore/internal/devserver/service"
	"github.com/aussiebroadwan/emstore/pkg/authsdk"
	"github.com/aussiebroadwan/emstore/pkg/slogx"
)

// maxJSONBody bounds decoded request bodies.
const maxJSONBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// writeServiceError maps service errors onto the JSON error taxonomy.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		authsdk.NewValidationError(verr.Fields).WriteError(w)
	case errors.Is(err, service.ErrInvalidCredentials):
		authsdk.ErrInvalidCredentials.WriteError(w)
	case errors.Is(err, service.ErrNotFound):
		authsdk.ErrResourceNotFound.WriteError(w)
	case errors.Is(err, service.ErrTooLarge):
		authsdk.NewAPIError(http.StatusRequestEntityTooLarge, authsdk.CodeInvalidRequest, "file exceeds the upload size limit").WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

func toUser(u domain.User) *authsdk.User {
	return &authsdk.User{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

func toCampaign(c domain.Campaign) authsdk.Campaign {
	return authsdk.Campaign{
		ID:          c.ID,
		Name:        c.Name,
		Subject:     c.Subject,
		Body:        c.Body,
		Email:       c.Email,
		Provider:    c.Provider,
		IMAPHost:    c.IMAPHost,
		IMAPPort:    c.IMAPPort,
		SMTPHost:    c.SMTPHost,
		SMTPPort:    c.SMTPPort,
		UseSSL:      c.UseSSL,
		Notes:       c.Notes,
		Attachments: toAttachments(c.Attachments),
		CreatedAt:   c.CreatedAt,
	}
}

func toAttachments(in []domain.Attachment) []authsdk.Attachment {
	out := make([]authsdk.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, authsdk.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return out
}
