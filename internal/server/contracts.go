package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/contract-optimizer/internal/model"
	"github.com/sells-group/contract-optimizer/internal/store"
)

func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	filter := store.ContractFilter{}
	if raw := r.URL.Query().Get("contract_type"); raw != "" {
		ct := model.ContractType(raw)
		if !model.ValidContractTypes[ct] {
			writeError(w, http.StatusBadRequest, "invalid contract type")
			return
		}
		filter.ContractType = ct
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			filter.Limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			filter.Offset = v
		}
	}

	contracts, err := s.store.ListContracts(r.Context(), userID(r), filter)
	if err != nil {
		writeStoreError(w, err, "contracts")
		return
	}
	if contracts == nil {
		contracts = []model.Contract{}
	}
	writeJSON(w, http.StatusOK, contracts)
}

func (s *Server) handleContractSummary(w http.ResponseWriter, r *http.Request) {
	contracts, err := s.store.ListContracts(r.Context(), userID(r), store.ContractFilter{Limit: 1000})
	if err != nil {
		writeStoreError(w, err, "contracts")
		return
	}
	writeJSON(w, http.StatusOK, model.Summarize(contracts, time.Now().UTC()))
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	contract, err := s.store.GetContract(r.Context(), userID(r), chi.URLParam(r, "contractID"))
	if err != nil {
		writeStoreError(w, err, "contract")
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

func (s *Server) handleUpdateContract(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	contractID := chi.URLParam(r, "contractID")

	existing, err := s.store.GetContract(r.Context(), uid, contractID)
	if err != nil {
		writeStoreError(w, err, "contract")
		return
	}

	var update model.Contract
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if update.ContractType != nil && !model.ValidContractTypes[*update.ContractType] {
		writeError(w, http.StatusBadRequest, "invalid contract type")
		return
	}
	if update.MonthlyCost != nil && *update.MonthlyCost < 0 {
		writeError(w, http.StatusBadRequest, "monthly cost cannot be negative")
		return
	}
	if update.AnnualCost != nil && *update.AnnualCost < 0 {
		writeError(w, http.StatusBadRequest, "annual cost cannot be negative")
		return
	}

	// Identity and file rows are never client-editable.
	update.ID = existing.ID
	update.UserID = uid
	update.Files = existing.Files
	update.CreatedAt = existing.CreatedAt
	if update.Currency == "" {
		update.Currency = existing.Currency
	}

	updated, err := s.store.UpdateContract(r.Context(), update)
	if err != nil {
		writeStoreError(w, err, "contract")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleFileURL returns a short-lived download URL for one contract document.
func (s *Server) handleFileURL(w http.ResponseWriter, r *http.Request) {
	contract, err := s.store.GetContract(r.Context(), userID(r), chi.URLParam(r, "contractID"))
	if err != nil {
		writeStoreError(w, err, "contract")
		return
	}

	fileID := chi.URLParam(r, "fileID")
	for _, f := range contract.Files {
		if f.ID != fileID {
			continue
		}
		url, err := s.storage.PresignedURL(r.Context(), f.Path, 15*time.Minute)
		if err != nil {
			zap.L().Error("presign failed", zap.String("path", f.Path), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to generate download url")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url, "name": f.Name})
		return
	}
	writeError(w, http.StatusNotFound, "file not found")
}

func (s *Server) handleDeleteContract(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	contractID := chi.URLParam(r, "contractID")

	contract, err := s.store.GetContract(r.Context(), uid, contractID)
	if err != nil {
		writeStoreError(w, err, "contract")
		return
	}

	// Remove blobs first. A missing object is fine; other storage errors are
	// logged but do not block the row delete.
	g, ctx := errgroup.WithContext(r.Context())
	for _, f := range contract.Files {
		path := f.Path
		g.Go(func() error {
			if err := s.storage.Delete(ctx, path); err != nil {
				zap.L().Warn("blob delete failed", zap.String("path", path), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := s.store.DeleteContract(r.Context(), uid, contractID); err != nil {
		writeStoreError(w, err, "contract")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
