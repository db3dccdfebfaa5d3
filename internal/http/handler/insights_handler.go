package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/pipemetric/insights-api/internal/domain"
	"github.com/pipemetric/insights-api/internal/ingest"
	"github.com/pipemetric/insights-api/internal/mapper"
	"github.com/pipemetric/insights-api/internal/service"
)

const defaultHistoryLimit = 20

type InsightsHandler struct {
	insightsService *service.InsightsService
	maxUploadMB     int64
	logger          *zap.Logger
}

func NewInsightsHandler(insightsService *service.InsightsService, maxUploadMB int64, logger *zap.Logger) *InsightsHandler {
	return &InsightsHandler{
		insightsService: insightsService,
		maxUploadMB:     maxUploadMB,
		logger:          logger,
	}
}

// RefreshUpload ingests a CSV or XLSX export and rebuilds the snapshot from it.
func (h *InsightsHandler) RefreshUpload(w http.ResponseWriter, r *http.Request) {
	// Limit request size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadMB*1024*1024)

	if err := r.ParseMultipartForm(h.maxUploadMB * 1024 * 1024); err != nil {
		respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large: maximum size is %dMB", h.maxUploadMB))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid file upload: file field is required")
		return
	}
	defer file.Close()

	records, err := ingest.Read(file, header.Filename)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse %s: %v", header.Filename, err))
		return
	}

	record, err := h.insightsService.Refresh(r.Context(), records, domain.RefreshSourceUpload)
	if err != nil {
		h.handleServiceError(w, "refresh from upload", err)
		return
	}

	respondJSON(w, http.StatusCreated, mapper.ToRefreshResponseDTO(record))
}

// RefreshRecords accepts raw deal records as a JSON array and rebuilds the snapshot.
func (h *InsightsHandler) RefreshRecords(w http.ResponseWriter, r *http.Request) {
	var records []domain.RawRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: expected a JSON array of records")
		return
	}

	record, err := h.insightsService.Refresh(r.Context(), records, domain.RefreshSourceRecords)
	if err != nil {
		h.handleServiceError(w, "refresh from records", err)
		return
	}

	respondJSON(w, http.StatusCreated, mapper.ToRefreshResponseDTO(record))
}

// RefreshWarehouse pulls deal records from the configured warehouse and rebuilds the snapshot.
func (h *InsightsHandler) RefreshWarehouse(w http.ResponseWriter, r *http.Request) {
	record, err := h.insightsService.RefreshFromWarehouse(r.Context())
	if err != nil {
		h.handleServiceError(w, "refresh from warehouse", err)
		return
	}

	respondJSON(w, http.StatusCreated, mapper.ToRefreshResponseDTO(record))
}

// ListDeals returns the normalized deals from the current snapshot.
func (h *InsightsHandler) ListDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := h.insightsService.Deals()
	if err != nil {
		h.handleServiceError(w, "list deals", err)
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToDealDTOs(deals, h.insightsService.Classifier()))
}

// Summary returns the headline KPIs and funnel for the current snapshot.
func (h *InsightsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.insightsService.Summary()
	if err != nil {
		h.handleServiceError(w, "build summary", err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

func (h *InsightsHandler) Funnel(w http.ResponseWriter, r *http.Request) {
	steps, err := h.insightsService.Funnel()
	if err != nil {
		h.handleServiceError(w, "build funnel", err)
		return
	}

	respondJSON(w, http.StatusOK, steps)
}

func (h *InsightsHandler) Transitions(w http.ResponseWriter, r *http.Request) {
	transitions, err := h.insightsService.Transitions()
	if err != nil {
		h.handleServiceError(w, "build transitions", err)
		return
	}

	respondJSON(w, http.StatusOK, transitions)
}

func (h *InsightsHandler) AELeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := h.insightsService.AELeaderboard()
	if err != nil {
		h.handleServiceError(w, "build AE leaderboard", err)
		return
	}

	respondJSON(w, http.StatusOK, rows)
}

func (h *InsightsHandler) BDRLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := h.insightsService.BDRLeaderboard()
	if err != nil {
		h.handleServiceError(w, "build BDR leaderboard", err)
		return
	}

	respondJSON(w, http.StatusOK, rows)
}

func (h *InsightsHandler) StaleDeals(w http.ResponseWriter, r *http.Request) {
	report, err := h.insightsService.StaleDeals()
	if err != nil {
		h.handleServiceError(w, "build stale report", err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func (h *InsightsHandler) ClosingSoon(w http.ResponseWriter, r *http.Request) {
	deals, err := h.insightsService.ClosingSoon()
	if err != nil {
		h.handleServiceError(w, "build closing-soon report", err)
		return
	}

	respondJSON(w, http.StatusOK, deals)
}

func (h *InsightsHandler) TopOpenDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := h.insightsService.TopOpenDeals()
	if err != nil {
		h.handleServiceError(w, "build top open deals", err)
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToDealDTOs(deals, h.insightsService.Classifier()))
}

func (h *InsightsHandler) ContractSent(w http.ResponseWriter, r *http.Request) {
	deals, err := h.insightsService.ContractSent()
	if err != nil {
		h.handleServiceError(w, "build contract-sent report", err)
		return
	}

	respondJSON(w, http.StatusOK, deals)
}

// History lists past refresh runs, newest first.
func (h *InsightsHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit: must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := h.insightsService.History(r.Context(), limit)
	if err != nil {
		h.handleServiceError(w, "list refresh history", err)
		return
	}

	dtos := make([]domain.RefreshResponseDTO, 0, len(records))
	for i := range records {
		dtos = append(dtos, mapper.ToRefreshResponseDTO(&records[i]))
	}

	respondJSON(w, http.StatusOK, dtos)
}

// LatestRefresh returns the most recent persisted refresh run.
func (h *InsightsHandler) LatestRefresh(w http.ResponseWriter, r *http.Request) {
	record, err := h.insightsService.LatestRefresh(r.Context())
	if err != nil {
		h.handleServiceError(w, "load latest refresh", err)
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToRefreshResponseDTO(record))
}

// handleServiceError maps service errors onto HTTP status codes
func (h *InsightsHandler) handleServiceError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, service.ErrNoData):
		respondWithError(w, http.StatusNotFound, "No snapshot available: run a refresh first")
	case errors.Is(err, service.ErrInvalidInput):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrWarehouseDisabled):
		respondWithError(w, http.StatusServiceUnavailable, "Warehouse integration is not configured")
	default:
		h.logger.Error("failed to "+action, zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}
