package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/emstore/internal/devserver/domain"
	"github.com/aussiebroadwan/emstore/internal/devserver/service"
	"github.com/aussiebroadwan/emstore/pkg/authsdk"
	"github.com/aussiebroadwan/emstore/pkg/httpx"
	"github.com/aussiebroadwan/emstore/pkg/slogx"
)

type AuthHandler struct {
	AuthService *service.AuthService
	Scheme      authsdk.Scheme

	// CSRF is set under the cookie scheme and rotated on login.
	CSRF   *httpx.CSRF
	Secure bool
}

// HandleLogin godoc
//
//	@Summary		Log in
//	@Description	Cookie scheme: sets the sessionid cookie and rotates the CSRF token.
//	@Description	Bearer scheme: returns an access and refresh token pair.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.AuthResponse
//	@Failure		400		{object}	authsdk.APIError	"Malformed request"
//	@Failure		401		{object}	authsdk.APIError	"Invalid credentials"
//	@Failure		429		{object}	authsdk.APIError	"Rate limited"
//	@Router			/api/auth/login/ [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WithDetail(err.Error()).WriteError(w)
		return
	}

	u, err := h.AuthService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.establish(w, r, u, http.StatusOK)
}

// HandleRegister godoc
//
//	@Summary		Register
//	@Description	Creates an account and logs it in the same way as login.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.RegisterRequest	true	"New account"
//	@Success		201		{object}	authsdk.AuthResponse
//	@Failure		400		{object}	authsdk.APIError	"Validation failed; fields lists each problem"
//	@Router			/api/auth/register/ [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WithDetail(err.Error()).WriteError(w)
		return
	}

	u, err := h.AuthService.Register(r.Context(), service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Password2: req.Password2,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.establish(w, r, u, http.StatusCreated)
}

func (h *AuthHandler) establish(w http.ResponseWriter, r *http.Request, u domain.User, status int) {
	ctx := r.Context()
	resp := authsdk.AuthResponse{User: toUser(u)}

	if h.Scheme == authsdk.SchemeBearer {
		pair, err := h.AuthService.IssueTokens(ctx, u)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp.AccessToken = pair.AccessToken
		resp.RefreshToken = pair.RefreshToken
	} else {
		// Drop any session the browser was still holding.
		if p, ok := httpx.PrincipalFromContext(ctx); ok {
			_ = h.AuthService.EndSession(ctx, p.SessionID)
		}

		token, expires, err := h.AuthService.StartSession(ctx, u.ID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		h.setSessionCookie(w, token, expires)

		if _, err := h.CSRF.Issue(w); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	slogx.FromContext(ctx).Info("user logged in", "user_id", u.ID, "scheme", string(h.Scheme))
	httpx.NoCache(w)
	httpx.WriteJSON(w, status, resp)
}

// HandleLogout godoc
//
//	@Summary		Log out
//	@Description	Ends the session, or revokes the refresh token given in the body.
//	@Description	Always succeeds, also when nobody was logged in.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Security		CSRFToken
//	@Param			body	body		authsdk.LogoutRequest	false	"Bearer scheme refresh token"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Router			/api/auth/logout/ [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if h.Scheme == authsdk.SchemeBearer {
		var req authsdk.LogoutRequest
		if r.ContentLength != 0 {
			_ = decodeJSON(w, r, &req)
		}
		if err := h.AuthService.RevokeRefresh(ctx, req.RefreshToken); err != nil {
			log.Warn("failed to revoke refresh token", "err", err)
		}
	} else {
		if p, ok := httpx.PrincipalFromContext(ctx); ok {
			if err := h.AuthService.EndSession(ctx, p.SessionID); err != nil {
				log.Warn("failed to end session", "err", err)
			}
		}
		h.setSessionCookie(w, "", time.Time{})
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "Successfully logged out"})
}

// HandleUser godoc
//
//	@Summary		Current user
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserResponse
//	@Failure		401	{object}	authsdk.APIError	"Not authenticated"
//	@Router			/api/auth/user/ [get].
func (h *AuthHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.AuthService.GetUser(r.Context(), httpx.UserIDFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			authsdk.ErrNotAuthenticated.WriteError(w)
			return
		}
		writeServiceError(w, r, err)
		return
	}
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{User: toUser(u)})
}

// HandleSession godoc
//
//	@Summary		Session probe
//	@Description	Reports whether the request is authenticated. Never answers 401.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	authsdk.SessionResponse
//	@Router			/api/auth/session/ [get].
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	resp := authsdk.SessionResponse{}
	if p, ok := httpx.PrincipalFromContext(r.Context()); ok {
		if u, err := h.AuthService.GetUser(r.Context(), p.UserID); err == nil {
			resp.Authenticated = true
			resp.User = toUser(u)
		}
	}
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleRefresh godoc
//
//	@Summary		Refresh access token
//	@Description	Exchanges a refresh token for a new pair. The presented token is
//	@Description	revoked; presenting it again revokes every token of the user.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.RefreshResponse
//	@Failure		401		{object}	authsdk.APIError	"Refresh token invalid, expired or revoked"
//	@Router			/api/auth/refresh/ [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WithDetail(err.Error()).WriteError(w)
		return
	}

	pair, err := h.AuthService.Refresh(r.Context(), req.Refresh)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			authsdk.ErrNotAuthenticated.WithDetail("refresh token is invalid or expired").WriteError(w)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.RefreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// setSessionCookie writes the session cookie. An empty token expires it.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	c := &http.Cookie{
		Name:     httpx.DefaultSessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		c.MaxAge = -1
	} else {
		c.Expires = expires
	}
	http.SetCookie(w, c)
}
