package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"climate-api/internal/models"
	"climate-api/internal/repository"
	"climate-api/internal/services"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

// Route paths served by ClimateHandler
const (
	RouteIndex         = "/"
	RoutePrecipitation = "/api/v1.0/precipitation"
	RouteStations      = "/api/v1.0/stations"
	RouteTobs          = "/api/v1.0/tobs"
	RouteStart         = "/api/v1.0/{start}"
	RouteStartEnd      = "/api/v1.0/{start}/{end}"
	RouteHealth        = "/health"
)

// StatusClientClosedRequest is written when the client went away before the response was ready
const StatusClientClosedRequest = 499

// ClimateHandler handles climate API endpoints
type ClimateHandler struct {
	service *services.ClimateService
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewClimateHandler creates a new climate handler
func NewClimateHandler(
	service *services.ClimateService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *ClimateHandler {
	return &ClimateHandler{
		service: service,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

const indexHTML = `<h1>Welcome!</h1></br>
<h2>This API provides climate data for Hawaii</h2></br>
<h3>Available Routes:</h3><br/>
<b>Returns a JSON object of precipitation measurements keyed by date.</b></br>
/api/v1.0/precipitation<br/><br/>
<b>Returns a JSON object of station names keyed by station id.</b></br>
/api/v1.0/stations<br/><br/>
<b>Returns a JSON object of temperature observations (TOBS) of the most active station for the previous year.</b></br>
/api/v1.0/tobs<br/><br/>
<b>Returns a JSON list with the max, min and avg temperature for a given start or start-end range.
End date is optional. Enter dates in format 'YYYY-MM-DD'.</b><br/></br>
/api/v1.0/start_date</br>
/api/v1.0/start_date/end_date<br/></br>
<em>Examples:</em></br>
/api/v1.0/2017-01-01</br>
/api/v1.0/2017-01-01/2017-12-31<br/></br>
<em>API documentation:</em></br>
/api/docs
`

// Index handles GET /
func (h *ClimateHandler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(indexHTML))
}

// GetPrecipitation handles GET /api/v1.0/precipitation
func (h *ClimateHandler) GetPrecipitation(w http.ResponseWriter, r *http.Request) {
	byDate, err := h.service.Precipitation(r.Context())
	if err != nil {
		h.sendServiceError(w, r, RoutePrecipitation, err)
		return
	}

	h.sendJSON(w, byDate, http.StatusOK)
}

// GetStations handles GET /api/v1.0/stations
func (h *ClimateHandler) GetStations(w http.ResponseWriter, r *http.Request) {
	byCode, err := h.service.Stations(r.Context())
	if err != nil {
		h.sendServiceError(w, r, RouteStations, err)
		return
	}

	h.sendJSON(w, byCode, http.StatusOK)
}

// GetTemperatureObservations handles GET /api/v1.0/tobs
func (h *ClimateHandler) GetTemperatureObservations(w http.ResponseWriter, r *http.Request) {
	byDate, err := h.service.TemperatureObservations(r.Context())
	if err != nil {
		h.sendServiceError(w, r, RouteTobs, err)
		return
	}

	h.sendJSON(w, byDate, http.StatusOK)
}

// GetSummaryFrom handles GET /api/v1.0/{start}
func (h *ClimateHandler) GetSummaryFrom(w http.ResponseWriter, r *http.Request) {
	start := mux.Vars(r)["start"]

	summaries, err := h.service.SummarizeFrom(r.Context(), start)
	if err != nil {
		h.sendServiceError(w, r, RouteStart, err)
		return
	}

	h.sendJSON(w, summaries, http.StatusOK)
}

// GetSummaryBetween handles GET /api/v1.0/{start}/{end}
func (h *ClimateHandler) GetSummaryBetween(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	summaries, err := h.service.SummarizeBetween(r.Context(), vars["start"], vars["end"])
	if err != nil {
		h.sendServiceError(w, r, RouteStartEnd, err)
		return
	}

	h.sendJSON(w, summaries, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *ClimateHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.service.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK] Data store unreachable", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		h.sendJSON(w, status, http.StatusServiceUnavailable)
		return
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

// sendServiceError maps a service failure onto a status code and logs it
func (h *ClimateHandler) sendServiceError(w http.ResponseWriter, r *http.Request, route string, err error) {
	ctx := r.Context()

	var dateErr *models.DateParseError
	var storeErr *repository.DataStoreUnavailableError

	switch {
	case errors.As(err, &dateErr):
		h.logger.Debug(ctx, "[API_BAD_DATE] Rejected malformed date", logging.Fields{
			"route": route,
			"field": dateErr.Field,
			"value": dateErr.Value,
		})
		h.metrics.RecordAPIError("date_parse_error", route)
		h.sendError(w, dateErr.Error(), http.StatusBadRequest)

	case errors.Is(err, repository.ErrEmptyDataset):
		h.logger.Error(ctx, "[API_EMPTY_DATASET] Dataset has no measurements", logging.Fields{
			"route": route,
		}, err)
		h.metrics.RecordAPIError("empty_dataset", route)
		h.sendError(w, "dataset contains no measurements", http.StatusInternalServerError)

	case errors.Is(err, context.Canceled):
		h.logger.Debug(ctx, "[API_CLIENT_GONE] Request cancelled by client", logging.Fields{
			"route": route,
		})
		w.WriteHeader(StatusClientClosedRequest)

	case errors.As(err, &storeErr):
		h.logger.Error(ctx, "[API_STORE_UNAVAILABLE] Data store query failed", logging.Fields{
			"route": route,
			"op":    storeErr.Op,
		}, err)
		h.metrics.RecordAPIError("data_store_unavailable", route)
		h.sendError(w, "data store unavailable", http.StatusInternalServerError)

	default:
		h.logger.Error(ctx, "[API_INTERNAL_ERROR] Request failed", logging.Fields{
			"route": route,
		}, err)
		h.metrics.RecordAPIError("internal_error", route)
		h.sendError(w, "internal server error", http.StatusInternalServerError)
	}
}

// sendJSON sends a JSON response
func (h *ClimateHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	body, err := json.Marshal(data)
	if err != nil {
		h.logger.Error(context.Background(), "[API_ENCODE_ERROR] Failed to encode response", logging.Fields{}, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal Server Error","message":"failed to encode response","code":500}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(append(body, '\n'))
}

// sendError sends an error response
func (h *ClimateHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers the climate routes, health check and API docs on router.
// Literal /api/v1.0 routes are registered before the {start} catch-all.
func (h *ClimateHandler) RegisterRoutes(router *mux.Router) {
	router.Use(RequestID, h.AccessLog, h.Instrument)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.sendError(w, "route not found", http.StatusNotFound)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	router.HandleFunc(RouteIndex, h.Index).Methods(http.MethodGet)
	router.HandleFunc(RouteHealth, h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/docs", SwaggerUI).Methods(http.MethodGet)
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods(http.MethodGet)

	router.HandleFunc(RoutePrecipitation, h.GetPrecipitation).Methods(http.MethodGet)
	router.HandleFunc(RouteStations, h.GetStations).Methods(http.MethodGet)
	router.HandleFunc(RouteTobs, h.GetTemperatureObservations).Methods(http.MethodGet)
	router.HandleFunc(RouteStart, h.GetSummaryFrom).Methods(http.MethodGet)
	router.HandleFunc(RouteStartEnd, h.GetSummaryBetween).Methods(http.MethodGet)
}
