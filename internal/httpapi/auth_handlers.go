package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/senocak/authcore/internal/audit"
	"github.com/senocak/authcore/internal/auth"
	"github.com/senocak/authcore/internal/users"
)

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, r, err)
		return
	}
	email := strings.TrimSpace(req.Email)

	ctx, principal, err := a.Guard.Authenticate(r.Context(), email, &req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, users.ErrUserNotFound) {
			_ = a.Audit.LogEvent(r.Context(), audit.EventLoginFailed, map[string]any{"email": email})
		}
		writeError(w, r, err)
		return
	}
	r = r.WithContext(ctx)

	user, err := a.Directory.FindByEmail(ctx, principal.Subject)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := a.Tokens.Generate(user.Email, user.RoleNames(), a.TokenTTL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = a.Audit.LogEvent(ctx, audit.EventLoginSucceeded, map[string]any{"email": user.Email})

	w.Header().Set("jwtExpiresIn", strconv.FormatInt(a.TokenTTL.Milliseconds(), 10))
	w.Header().Set("userId", user.ID)
	writeJSON(w, http.StatusOK, userWrapperResponse{User: toUserResponse(user), Token: token})
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, r, err)
		return
	}
	hash, err := a.Hasher.Hash(req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user, err := a.Directory.Register(r.Context(), strings.TrimSpace(req.Name), "", strings.TrimSpace(req.Email), hash)
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			a.Logger.WarnContext(r.Context(), "registration rejected", "error", err)
		}
		writeError(w, r, err)
		return
	}
	_ = a.Audit.LogEvent(r.Context(), audit.EventRegistered, map[string]any{"email": user.Email, "user_id": user.ID})
	writeJSON(w, http.StatusCreated, messageResponse{Message: "email_has_to_be_verified"})
}

func (a *API) csrfToken(w http.ResponseWriter, r *http.Request) {
	if a.CSRF == nil {
		writeError(w, r, newServerError(NotFound, http.StatusNotFound, "csrf"))
		return
	}
	token, err := a.CSRF.Generate(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}
