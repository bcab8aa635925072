package http

import (
	"net/http"

	"github.com/aussiebroadwan/emstore/pkg/authsdk"
	"github.com/aussiebroadwan/emstore/pkg/httpx"
)

// CSRFHandler issues a fresh CSRF token.
//
//	@Summary		Get CSRF token
//	@Description	Sets the csrftoken cookie and returns the same value. Unsafe requests
//	@Description	must echo it in the X-CSRFToken header. Cookie scheme only.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	authsdk.CSRFResponse	"csrfToken"
//	@Router			/api/auth/csrf/ [get].
func CSRFHandler(csrf *httpx.CSRF) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := csrf.Issue(w)
		if err != nil {
			authsdk.ErrServerError.WriteError(w)
			return
		}
		httpx.NoCache(w)
		httpx.WriteJSON(w, http.StatusOK, authsdk.CSRFResponse{CSRFToken: token})
	}
}
