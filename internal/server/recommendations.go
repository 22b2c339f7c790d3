package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/contract-optimizer/internal/model"
	"github.com/sells-group/contract-optimizer/internal/store"
)

func (s *Server) handleListRecommendations(w http.ResponseWriter, r *http.Request) {
	filter := store.RecommendationFilter{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		filter.Status = model.RecommendationStatus(raw)
	}
	if raw := r.URL.Query().Get("priority"); raw != "" {
		filter.Priority = model.Priority(raw)
	}

	recs, err := s.store.ListRecommendations(r.Context(), userID(r), filter)
	if err != nil {
		writeStoreError(w, err, "recommendations")
		return
	}
	if recs == nil {
		recs = []model.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleGenerateRecommendations runs the recommendation engine over the
// user's contracts and persists the output. The already-analyzed set is read
// fresh per request; concurrent calls for the same user can race and insert
// duplicates, which is accepted.
func (s *Server) handleGenerateRecommendations(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	contracts, err := s.store.ListContracts(r.Context(), uid, store.ContractFilter{Limit: 1000})
	if err != nil {
		writeStoreError(w, err, "contracts")
		return
	}
	if len(contracts) == 0 {
		writeJSON(w, http.StatusOK, []model.Recommendation{})
		return
	}

	analyzed, err := s.store.AnalyzedContractIDs(r.Context(), uid)
	if err != nil {
		writeStoreError(w, err, "recommendations")
		return
	}

	recs, err := s.recommender.Generate(r.Context(), uid, contracts, analyzed)
	if err != nil {
		zap.L().Error("recommendation generation failed", zap.String("user_id", uid), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to generate recommendations")
		return
	}
	if len(recs) == 0 {
		writeJSON(w, http.StatusOK, []model.Recommendation{})
		return
	}

	created, err := s.store.CreateRecommendations(r.Context(), recs)
	if err != nil {
		writeStoreError(w, err, "recommendations")
		return
	}
	writeJSON(w, http.StatusOK, created)
}

// handleGetRecommendation returns one recommendation, transitioning it from
// pending to viewed on first read.
func (s *Server) handleGetRecommendation(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	recID := chi.URLParam(r, "recID")

	rec, err := s.store.GetRecommendation(r.Context(), uid, recID)
	if err != nil {
		writeStoreError(w, err, "recommendation")
		return
	}

	if rec.Status == model.StatusPending {
		rec, err = s.store.UpdateRecommendationStatus(r.Context(), uid, recID, model.StatusViewed)
		if err != nil {
			writeStoreError(w, err, "recommendation")
			return
		}
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateRecommendation(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	recID := chi.URLParam(r, "recID")

	var update struct {
		Status model.RecommendationStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.store.GetRecommendation(r.Context(), uid, recID)
	if err != nil {
		writeStoreError(w, err, "recommendation")
		return
	}
	if !rec.Status.CanTransition(update.Status) {
		writeError(w, http.StatusBadRequest, "illegal status transition")
		return
	}

	updated, err := s.store.UpdateRecommendationStatus(r.Context(), uid, recID, update.Status)
	if err != nil {
		writeStoreError(w, err, "recommendation")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
