package api

import (
	"net/http"

	"github.com/conversion-tracker/internal/models"
)

// handleRankedCampaigns handles GET /api/v1/campaigns/ranked - Current campaign ranking
//
// The ranking is produced by the scorer on its own schedule and cached;
// this endpoint only reads the cache. An empty list means no scoring run
// has published yet.
func (s *Server) handleRankedCampaigns(w http.ResponseWriter, r *http.Request) {
	ranked, err := s.campaignCache.GetRankedCampaigns(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("GetRankedCampaigns failed")
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Campaign ranking temporarily unavailable", nil)
		return
	}

	if ranked == nil {
		ranked = []*models.RankedCampaign{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaigns": ranked,
	})
}
