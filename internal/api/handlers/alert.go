package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pratik-mahalle/secwatch/internal/api/dto"
	"github.com/pratik-mahalle/secwatch/internal/detector"
	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/secwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/secwatch/internal/pkg/utils"
	"github.com/pratik-mahalle/secwatch/internal/pkg/validator"
)

// maxAlertBody caps an ingestion request body
const maxAlertBody = 1 << 20

type AlertHandler struct {
	dispatcher alert.Dispatcher
	history    alert.Repository
	logger     *logger.Logger
	validator  *validator.Validator
}

// NewAlertHandler creates the alert API handler. history may be nil when
// alert history is disabled.
func NewAlertHandler(dispatcher alert.Dispatcher, history alert.Repository, log *logger.Logger, val *validator.Validator) *AlertHandler {
	return &AlertHandler{dispatcher: dispatcher, history: history, logger: log, validator: val}
}

// Create dispatches one alert and reports the per-sink outcome
// @Summary Dispatch alert
// @Tags Alerts
// @Accept json
// @Produce json
// @Param request body dto.CreateAlertRequest true "Alert"
// @Success 200 {object} dto.DispatchResultDTO
// @Failure 400 {object} utils.Envelope "Malformed alert"
// @Router /alerts [post]
func (h *AlertHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAlertRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAlertBody)).Decode(&req); err != nil {
		utils.WriteError(w, errors.BadRequest("Invalid request body"))
		return
	}

	if errs := h.validator.Validate(req); len(errs) > 0 {
		utils.WriteError(w, errors.ValidationError(validator.Summary(errs), errs))
		return
	}

	rec, err := req.ToRecord()
	if err != nil {
		writeAppError(w, err, "Failed to build alert")
		return
	}

	res, err := h.dispatcher.Dispatch(r.Context(), rec)
	if err != nil {
		writeAppError(w, err, "Failed to dispatch alert")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, dto.NewDispatchResultDTO(res))
}

// Alertmanager accepts an Alertmanager style webhook batch. Each alert is
// dispatched independently; alerts that cannot be built are reported as
// rejected without failing the batch.
// @Summary Alertmanager webhook
// @Tags Alerts
// @Accept json
// @Produce json
// @Success 200 {object} dto.WebhookResponse
// @Failure 400 {object} utils.Envelope
// @Router /alerts/alertmanager [post]
func (h *AlertHandler) Alertmanager(w http.ResponseWriter, r *http.Request) {
	var payload detector.InfraPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAlertBody)).Decode(&payload); err != nil {
		utils.WriteError(w, errors.BadRequest("Invalid webhook payload"))
		return
	}
	if len(payload.Alerts) == 0 {
		utils.WriteError(w, errors.BadRequest("Webhook payload contains no alerts"))
		return
	}

	resp := dto.WebhookResponse{
		Received:   len(payload.Alerts),
		Dispatched: make([]dto.DispatchResultDTO, 0, len(payload.Alerts)),
	}
	for i, a := range payload.Alerts {
		rec, err := detector.FromInfraAlert(a)
		if err == nil {
			var res *alert.DispatchResult
			if res, err = h.dispatcher.Dispatch(r.Context(), rec); err == nil {
				resp.Dispatched = append(resp.Dispatched, dto.NewDispatchResultDTO(res))
				continue
			}
		}
		h.logger.WithFields(map[string]interface{}{
			"receiver": payload.Receiver,
			"index":    i,
		}).WithError(err).Warn("Rejected webhook alert")
		resp.Rejected = append(resp.Rejected, dto.RejectedAlertDTO{Index: i, Error: err.Error()})
	}

	utils.WriteSuccess(w, http.StatusOK, resp)
}

// List returns persisted alerts, newest first
// @Summary List alert history
// @Tags Alerts
// @Produce json
// @Param name query string false "Filter by alert name"
// @Param severity query string false "Filter by severity"
// @Param source_ip query string false "Filter by source IP"
// @Param page query int false "Page number (default: 1)"
// @Param page_size query int false "Page size (default: 20, max: 100)"
// @Success 200 {object} utils.Page[dto.AlertHistoryDTO]
// @Failure 503 {object} utils.Envelope "History disabled"
// @Router /alerts [get]
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		utils.WriteError(w, errors.ServiceUnavailable("Alert history is disabled"))
		return
	}

	q := r.URL.Query()
	filter := alert.Filter{
		Name:     q.Get("name"),
		SourceIP: q.Get("source_ip"),
	}
	if raw := q.Get("severity"); raw != "" {
		sev, ok := alert.ParseSeverity(raw)
		if !ok {
			utils.WriteError(w, errors.BadRequest("Unknown severity: "+raw))
			return
		}
		filter.Severity = sev.String()
	}

	page, perr := utils.ParsePageRequest(r)
	if perr != nil {
		utils.WriteError(w, perr)
		return
	}
	entries, total, err := h.history.List(r.Context(), filter, page.Size, page.Offset())
	if err != nil {
		writeAppError(w, err, "Failed to list alerts")
		return
	}

	dtos := make([]dto.AlertHistoryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = dto.NewAlertHistoryDTO(e)
	}

	utils.WriteSuccess(w, http.StatusOK, utils.NewPage(dtos, page, total))
}
