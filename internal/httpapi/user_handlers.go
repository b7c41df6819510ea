package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/senocak/authcore/internal/audit"
	"github.com/senocak/authcore/internal/auth"
	"github.com/senocak/authcore/internal/users"
)

func (a *API) currentUser(r *http.Request) (users.User, error) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return users.User{}, auth.ErrAccessDenied
	}
	return a.Directory.FindByEmail(r.Context(), principal.Subject)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (a *API) patchMe(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validateRequest(req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Password != "" {
		switch {
		case req.PasswordConfirmation == "":
			writeError(w, r, newServerError(BasicInvalidInput, http.StatusBadRequest, "password_confirmation_not_provided"))
			return
		case req.PasswordConfirmation != req.Password:
			writeError(w, r, newServerError(BasicInvalidInput, http.StatusBadRequest, "password_and_confirmation_not_matched"))
			return
		}
	}

	user, err := a.currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var changed []string
	if req.Name != "" {
		user.Name = req.Name
		changed = append(changed, "name")
	}
	if req.Password != "" {
		hash, err := a.Hasher.Hash(req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		user.PasswordHash = hash
		changed = append(changed, "password")
	}
	saved, err := a.Directory.Save(r.Context(), &user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = a.Audit.LogEvent(r.Context(), audit.EventProfileUpdated, map[string]any{"fields": changed})
	writeJSON(w, http.StatusOK, toUserResponse(saved))
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := a.Directory.List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items := make([]UserResponse, 0, len(page.Items))
	for _, u := range page.Items {
		items = append(items, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, PaginationResponse[UserResponse]{
		Page:   page.Number,
		Pages:  page.Pages,
		Total:  page.Total,
		Sort:   "desc",
		SortBy: "createdAt",
		Items:  items,
	})
}

func parseListQuery(r *http.Request) (users.ListQuery, error) {
	values := r.URL.Query()
	page, err := parseInt(values.Get("page"), "page", 0, 0, 1<<20)
	if err != nil {
		return users.ListQuery{}, err
	}
	size, err := parseInt(values.Get("size"), "size", users.DefaultPageSize, 1, users.MaxPageSize)
	if err != nil {
		return users.ListQuery{}, err
	}
	var roleIDs []string
	for _, raw := range values["roleIds"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				roleIDs = append(roleIDs, id)
			}
		}
	}
	return users.ListQuery{
		Page:     page,
		Size:     size,
		Query:    values.Get("q"),
		RoleIDs:  roleIDs,
		Operator: users.ParseOperator(values.Get("operator")),
	}, nil
}

func parseInt(raw, name string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < min || val > max {
		return 0, newServerError(BasicInvalidInput, http.StatusBadRequest, name)
	}
	return val, nil
}
