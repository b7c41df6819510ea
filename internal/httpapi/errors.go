package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/senocak/authcore/internal/auth"
	"github.com/senocak/authcore/internal/cache"
	"github.com/senocak/authcore/internal/csrf"
	"github.com/senocak/authcore/internal/users"
)

// OmaError is one entry of the OMA service exception catalogue.
type OmaError struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

var (
	BasicInvalidInput     = OmaError{ID: "SVC0001", Text: "Invalid input value for message part %1"}
	GenericServiceError   = OmaError{ID: "SVC0002", Text: "The following service error occurred: %1. Error code is %2"}
	DetailedInvalidInput  = OmaError{ID: "SVC0003", Text: "Invalid input value for %1 %2: %3"}
	ExtraInputNotAllowed  = OmaError{ID: "SVC0004", Text: "Input %1 %2 not permitted in request"}
	MandatoryInputMissing = OmaError{ID: "SVC0005", Text: "Mandatory input %1 %2 is missing from request"}
	Unauthorized          = OmaError{ID: "SVC0006", Text: "UnAuthorized Endpoint"}
	JSONSchemaValidator   = OmaError{ID: "SVC0007", Text: "Schema failed."}
	NotFound              = OmaError{ID: "SVC0008", Text: "Entry is not found"}
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	StatusCode int      `json:"statusCode"`
	Error      OmaError `json:"error"`
	Variables  []string `json:"variables"`
}

// ServerError carries an explicit status, catalogue entry and variables.
type ServerError struct {
	Oma        OmaError
	StatusCode int
	Variables  []string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s (%d): %v", e.Oma.ID, e.StatusCode, e.Variables)
}

func newServerError(oma OmaError, status int, variables ...string) *ServerError {
	return &ServerError{Oma: oma, StatusCode: status, Variables: variables}
}

// ValidationError lists request fields that failed validation as "field: message".
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Fields)
}

// writeError is the single place that maps errors to HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := translate(err)
	switch {
	case resp.StatusCode >= 500:
		slog.ErrorContext(r.Context(), "request failed", "status", resp.StatusCode, "error", err)
	case resp.StatusCode != http.StatusNotFound:
		slog.DebugContext(r.Context(), "request rejected", "status", resp.StatusCode, "error", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, resp.StatusCode, resp)
}

func translate(err error) ErrorResponse {
	var (
		serverErr     *ServerError
		validationErr *ValidationError
	)
	switch {
	case errors.As(err, &serverErr):
		return ErrorResponse{StatusCode: serverErr.StatusCode, Error: serverErr.Oma, Variables: nonNil(serverErr.Variables)}
	case errors.As(err, &validationErr):
		return ErrorResponse{
			StatusCode: http.StatusUnprocessableEntity,
			Error:      GenericServiceError,
			Variables:  append([]string{"validation_error"}, validationErr.Fields...),
		}
	case errors.Is(err, auth.ErrAccessDenied), errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrTokenInvalid):
		return ErrorResponse{StatusCode: http.StatusUnauthorized, Error: Unauthorized, Variables: []string{err.Error()}}
	case errors.Is(err, csrf.ErrMissingToken), errors.Is(err, csrf.ErrInvalidToken):
		return ErrorResponse{StatusCode: http.StatusForbidden, Error: Unauthorized, Variables: []string{"csrf_token_invalid"}}
	case errors.Is(err, users.ErrEmailTaken):
		return ErrorResponse{StatusCode: http.StatusBadRequest, Error: JSONSchemaValidator, Variables: []string{uniqueEmailVariable(err)}}
	case errors.Is(err, users.ErrUserNotFound):
		return ErrorResponse{StatusCode: http.StatusNotFound, Error: NotFound, Variables: []string{"user_not_found"}}
	case errors.Is(err, users.ErrNotFound):
		return ErrorResponse{StatusCode: http.StatusNotFound, Error: NotFound, Variables: []string{"not_found"}}
	case errors.Is(err, cache.ErrStore):
		return ErrorResponse{StatusCode: http.StatusServiceUnavailable, Error: GenericServiceError, Variables: []string{"cache_unavailable"}}
	default:
		return ErrorResponse{StatusCode: http.StatusInternalServerError, Error: GenericServiceError, Variables: []string{"server_error", err.Error()}}
	}
}

// uniqueEmailVariable renders "users: email already registered: x" as "unique_email: x".
func uniqueEmailVariable(err error) string {
	if _, email, ok := strings.Cut(err.Error(), users.ErrEmailTaken.Error()+": "); ok {
		return "unique_email: " + email
	}
	return "unique_email"
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func (a *API) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, newServerError(NotFound, http.StatusNotFound, r.URL.Path))
}

func (a *API) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, newServerError(ExtraInputNotAllowed, http.StatusMethodNotAllowed, "method", r.Method))
}
