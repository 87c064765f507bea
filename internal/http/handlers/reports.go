package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/deviceops/reports-back/internal/domain"
	"github.com/deviceops/reports-back/internal/http/middleware"
)

type createReportRequest struct {
	ReportName string `json:"report_name"`
	Comment    string `json:"comment"`
	DeviceID   int    `json:"device_id"`
	DeviceType string `json:"device_type"`
}

type editReportRequest struct {
	ReportName string `json:"report_name"`
	Comment    string `json:"comment"`
}

// Reports routes everything under /v1/reports. The subtree is small enough
// that manual dispatch beats pulling in a router dependency.
func (api *API) Reports(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/reports"), "/")

	if rest == "" {
		switch r.Method {
		case http.MethodPost:
			api.createReport(w, r)
		case http.MethodGet:
			api.listReports(w, r)
		default:
			writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		}
		return
	}

	parts := strings.Split(rest, "/")
	reportID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			api.getReport(w, r, reportID)
		case http.MethodPut:
			api.editReport(w, r, reportID)
		case http.MethodDelete:
			api.deleteReport(w, r, reportID)
		default:
			writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		}
		return
	}

	if len(parts) == 2 {
		switch {
		case parts[1] == "pdf" && r.Method == http.MethodPost:
			api.generatePDF(w, r, reportID)
			return
		case parts[1] == "media" && r.Method == http.MethodGet:
			api.reportMedia(w, r, reportID)
			return
		}
	}

	writeError(w, r, http.StatusNotFound, "not_found", "route not found")
}

func (api *API) createReport(w http.ResponseWriter, r *http.Request) {
	var request createReportRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "invalid JSON payload")
		return
	}
	if request.ReportName == "" || request.DeviceType == "" || request.DeviceID <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "report_name, device_id and device_type are required")
		return
	}

	reportID, err := api.reportsService.Create(
		r.Context(),
		middleware.GetUserID(r.Context()),
		request.ReportName,
		request.Comment,
		request.DeviceID,
		domain.DeviceType(request.DeviceType),
	)
	if err != nil {
		api.logger.Printf("create report failed: %v", err)
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"report_id": reportID})
}

func (api *API) listReports(w http.ResponseWriter, r *http.Request) {
	pagination := domain.Pagination{
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 20),
	}

	reports, err := api.reportsService.List(r.Context(), pagination)
	if err != nil {
		api.logger.Printf("list reports failed: %v", err)
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reports":   reports,
		"page":      pagination.Page,
		"page_size": pagination.Limit(),
	})
}

func (api *API) getReport(w http.ResponseWriter, r *http.Request, reportID string) {
	report, err := api.reportsService.Get(r.Context(), reportID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (api *API) editReport(w http.ResponseWriter, r *http.Request, reportID string) {
	var request editReportRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "invalid JSON payload")
		return
	}
	if request.ReportName == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "report_name is required")
		return
	}

	err := api.reportsService.Edit(r.Context(), middleware.GetUserID(r.Context()), reportID, request.ReportName, request.Comment)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"report_id": reportID})
}

func (api *API) deleteReport(w http.ResponseWriter, r *http.Request, reportID string) {
	err := api.reportsService.Delete(r.Context(), middleware.GetUserID(r.Context()), reportID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// generatePDF runs the generation command synchronously. The background
// pipeline uses the same command; either path loses the second-writer race
// on the media uniqueness constraint and reports a conflict.
func (api *API) generatePDF(w http.ResponseWriter, r *http.Request, reportID string) {
	fileName, err := api.generateService.GeneratePDFReport(r.Context(), reportID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"report_id": reportID, "file_name": fileName})
}

func (api *API) reportMedia(w http.ResponseWriter, r *http.Request, reportID string) {
	media, err := api.reportsService.MediaByReportID(r.Context(), reportID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, media)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
