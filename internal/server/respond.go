package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/contract-optimizer/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeStoreError maps store errors to status codes. Ownership mismatches
// surface as 404, same as missing rows.
func writeStoreError(w http.ResponseWriter, err error, entity string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, entity+" not found")
		return
	}
	zap.L().Error("store operation failed", zap.String("entity", entity), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
