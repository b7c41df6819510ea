package httpapi

import "net/http"

// appHealth serves the MetricsRegistry snapshot.
func (a *API) appHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Registry.Snapshot(r.Context()))
}

func (a *API) cacheStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.Cache.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
