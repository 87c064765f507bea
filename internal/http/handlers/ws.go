package handlers

import (
	"net/http"
	"strings"
)

// ReportsSocket subscribes the caller to a report's delivery room. The
// connection stays open until the client closes it; finished artifacts are
// pushed as they land.
func (api *API) ReportsSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	reportID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/reports"), "/")
	if reportID == "" || strings.Contains(reportID, "/") {
		writeError(w, r, http.StatusNotFound, "not_found", "route not found")
		return
	}

	api.hub.Serve(w, r, reportID)
}
