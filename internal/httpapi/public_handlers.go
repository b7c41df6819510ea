package httpapi

import (
	"net/http"

	"github.com/senocak/authcore/internal/jobs"
)

func (a *API) ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "ping")
}

func (a *API) redisPing(w http.ResponseWriter, r *http.Request) {
	if err := a.Cache.Store().Ping(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "PONG")
}

// schedulers lists the job locks currently held, keyed by lock key.
func (a *API) schedulers(w http.ResponseWriter, r *http.Request) {
	values, err := a.Cache.Store().ValuesForPattern(r.Context(), a.LockPattern)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

// lockState reports whether this request runs under a job lock. HTTP requests
// never do; the endpoint mirrors the check scheduled jobs perform.
func (a *API) lockState(w http.ResponseWriter, r *http.Request) {
	if err := jobs.AssertLocked(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, "not locked")
		return
	}
	writeJSON(w, http.StatusOK, "locked")
}
