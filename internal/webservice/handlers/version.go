package handlers

import (
	"net/http"

	"github.com/reearth/cms-items-api/internal/constants"
	"github.com/reearth/cms-items-api/internal/webservice/metrics"
)

// VersionHandler handles requests to the /version endpoint.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)

	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method "+r.Method+" not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"version": constants.Version})
}
