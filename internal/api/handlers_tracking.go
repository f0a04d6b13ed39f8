package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/conversion-tracker/internal/errors"
	"github.com/conversion-tracker/internal/models"
	"github.com/conversion-tracker/internal/types"
)

// handleReconcile handles POST /api/v1/reconcile - Apply a batch of sale/refund updates
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ValidatorBlock  int64               `json:"validatorBlock"`
		ValidatorHotkey string              `json:"validatorHotkey"`
		Items           []*models.QueueItem `json:"items"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if req.ValidatorHotkey == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "validatorHotkey is required", nil)
		return
	}

	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "items must not be empty", nil)
		return
	}

	for _, item := range req.Items {
		if item == nil || item.ID == "" {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "every item requires an id", nil)
			return
		}
	}

	results := s.reconciler.Reconcile(r.Context(), req.ValidatorBlock, req.ValidatorHotkey, req.Items)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// handleAddVisits handles POST /api/v1/visits - Ingest a batch of visits
func (s *Server) handleAddVisits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visits []*models.Visit `json:"visits"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if len(req.Visits) == 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "visits must not be empty", nil)
		return
	}

	for _, v := range req.Visits {
		if v == nil || v.ID == "" || v.CampaignID == "" {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "every visit requires id and campaignId", nil)
			return
		}
	}

	added, err := s.tracking.AddVisits(r.Context(), req.Visits)
	if err != nil {
		s.logger.WithError(err).Error("AddVisits failed")
		statusCode, code, message := mapServiceError(err)
		respondError(w, statusCode, code, message, nil)
		return
	}

	// Best-effort activity counters; losing one never fails the ingest
	if s.recentActivity != nil {
		for _, v := range req.Visits {
			if v.IP == "" {
				continue
			}
			if _, err := s.recentActivity.RecordVisit(r.Context(), v.IP); err != nil {
				s.logger.WithError(err).Warn("recording visit activity failed")
				break
			}
		}
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"added": added,
	})
}

// handleAddCompletedVisits handles POST /api/v1/visits/completed - Bulk import closed-out visits
func (s *Server) handleAddCompletedVisits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visits []*models.CompletedVisit `json:"visits"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if len(req.Visits) == 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "visits must not be empty", nil)
		return
	}

	for _, v := range req.Visits {
		if v == nil || v.ID == "" || v.CampaignID == "" {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "every visit requires id and campaignId", nil)
			return
		}
	}

	if err := s.tracking.AddCompletedVisits(r.Context(), req.Visits); err != nil {
		s.logger.WithError(err).Error("AddCompletedVisits failed")
		statusCode, code, message := mapServiceError(err)
		respondError(w, statusCode, code, message, nil)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"imported": len(req.Visits),
	})
}

// handleListRecords handles GET /api/v1/records - Page through records by update time
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, err := parseTimeParam(query.Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid 'from' timestamp, expected RFC3339", nil)
		return
	}

	to, err := parseTimeParam(query.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid 'to' timestamp, expected RFC3339", nil)
		return
	}

	page, err := parsePageRequest(query.Get("page"), query.Get("pageSize"))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	result, err := s.tracking.RecordsBetweenPaged(r.Context(), from, to, page)
	if err != nil {
		s.logger.WithError(err).Error("RecordsBetweenPaged failed")
		statusCode, code, message := mapServiceError(err)
		respondError(w, statusCode, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleGetRecord handles GET /api/v1/records/:id - Get a single record
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	if id == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Record id required", nil)
		return
	}

	record, err := s.tracking.GetRecord(r.Context(), id)
	if err != nil {
		s.logger.WithError(err).Error("GetRecord failed")
		statusCode, code, message := mapServiceError(err)
		respondError(w, statusCode, code, message, nil)
		return
	}

	if record == nil {
		respondCategorized(w, apperrors.NewNotFoundError("record", id))
		return
	}

	respondJSON(w, http.StatusOK, record)
}

// handleRecordsByCampaignItems handles GET /api/v1/records/by_campaign_item - Filter by campaign item ids
func (s *Server) handleRecordsByCampaignItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	itemsParam := query.Get("items")
	if itemsParam == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "'items' query parameter required", nil)
		return
	}

	var items []string
	for _, item := range strings.Split(itemsParam, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "'items' query parameter required", nil)
		return
	}

	page, err := parsePageRequest(query.Get("page"), query.Get("pageSize"))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	records, err := s.tracking.RecordsByCampaignItems(r.Context(), items, page)
	if err != nil {
		s.logger.WithError(err).Error("RecordsByCampaignItems failed")
		statusCode, code, message := mapServiceError(err)
		respondError(w, statusCode, code, message, nil)
		return
	}

	if records == nil {
		records = []*models.TrackingRecord{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
	})
}

// handleLastUpdate handles GET /api/v1/records/last_update - Sync watermark for a peer
func (s *Server) handleLastUpdate(w http.ResponseWriter, r *http.Request) {
	exclude := r.URL.Query().Get("exclude_hotkey")

	lastUpdate, err := s.tracking.LastUpdateExcluding(r.Context(), exclude)
	if err != nil {
		s.logger.WithError(err).Error("LastUpdateExcluding failed")
		statusCode, code, message := mapServiceError(err)
		respondError(w, statusCode, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"lastUpdate": lastUpdate,
	})
}

// parseTimeParam parses an optional RFC3339 query parameter.
func parseTimeParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parsePageRequest parses optional page/pageSize query parameters.
func parsePageRequest(pageStr, sizeStr string) (types.PageRequest, error) {
	page := types.PageRequest{}

	if pageStr != "" {
		n, err := strconv.Atoi(pageStr)
		if err != nil || n < 1 {
			return page, &types.ServiceError{Code: "INVALID_PARAMETER", Message: "Invalid 'page' parameter"}
		}
		page.PageNumber = n
	}

	if sizeStr != "" {
		n, err := strconv.Atoi(sizeStr)
		if err != nil || n < 1 {
			return page, &types.ServiceError{Code: "INVALID_PARAMETER", Message: "Invalid 'pageSize' parameter"}
		}
		page.PageSize = n
	}

	return page.Normalize(), nil
}
