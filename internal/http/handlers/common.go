package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/deviceops/reports-back/internal/domain"
	"github.com/deviceops/reports-back/internal/http/middleware"
	"github.com/deviceops/reports-back/internal/realtime"
	"github.com/deviceops/reports-back/internal/service"
)

var errInvalidPayload = errors.New("invalid payload")

type API struct {
	reportsService  *service.ReportsService
	generateService *service.GenerateService
	hub             *realtime.Hub
	logger          *log.Logger
}

func NewAPI(
	reportsService *service.ReportsService,
	generateService *service.GenerateService,
	hub *realtime.Hub,
	logger *log.Logger,
) *API {
	return &API{
		reportsService:  reportsService,
		generateService: generateService,
		hub:             hub,
		logger:          logger,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

// writeAppError maps the application error kinds onto HTTP statuses and
// hides everything unclassified behind a 500.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch domain.KindOf(err) {
	case domain.ErrorKindNotFound:
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case domain.ErrorKindConflict:
		writeError(w, r, http.StatusConflict, "conflict", err.Error())
	case domain.ErrorKindUnauthorized:
		writeError(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
	case domain.ErrorKindForbidden:
		writeError(w, r, http.StatusForbidden, "forbidden", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", "request failed")
	}
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}
