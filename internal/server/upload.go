package server

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/contract-optimizer/internal/blob"
	"github.com/sells-group/contract-optimizer/internal/extraction"
	"github.com/sells-group/contract-optimizer/internal/model"
	"github.com/sells-group/contract-optimizer/internal/provider"
)

// uploadedFile pairs a document's bytes with its form metadata.
type uploadedFile struct {
	Filename     string
	Data         []byte
	Label        string
	DocumentType model.DocumentType
}

// readUploadFiles parses the multipart form and applies the per-request
// document count and per-file size limits before any provider work.
func (s *Server) readUploadFiles(r *http.Request) ([]uploadedFile, int, string) {
	if err := r.ParseMultipartForm(s.cfg.MaxFileBytes); err != nil {
		return nil, http.StatusBadRequest, "invalid multipart request"
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		// Single-file clients still use the older field name.
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		return nil, http.StatusBadRequest, "at least one file is required"
	}
	if len(headers) > s.cfg.MaxDocuments {
		return nil, http.StatusBadRequest, "too many documents in one request"
	}

	labels := r.MultipartForm.Value["labels"]
	docTypes := r.MultipartForm.Value["document_types"]

	files := make([]uploadedFile, 0, len(headers))
	for i, h := range headers {
		if !strings.HasSuffix(strings.ToLower(h.Filename), ".pdf") {
			return nil, http.StatusBadRequest, "only PDF files are supported"
		}
		if h.Size > s.cfg.MaxFileBytes {
			return nil, http.StatusBadRequest, "file size must be less than 10MB"
		}

		data, err := readMultipartFile(h)
		if err != nil {
			return nil, http.StatusBadRequest, "failed to read uploaded file"
		}

		f := uploadedFile{Filename: h.Filename, Data: data, DocumentType: model.DocOther}
		if i < len(labels) {
			f.Label = labels[i]
		}
		if i < len(docTypes) {
			dt := model.DocumentType(strings.ToLower(strings.TrimSpace(docTypes[i])))
			if model.ValidDocumentTypes[dt] {
				f.DocumentType = dt
			}
		}
		files = append(files, f)
	}
	return files, 0, ""
}

func readMultipartFile(h *multipart.FileHeader) ([]byte, error) {
	f, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// handleExtract runs the extraction pipeline over uploaded PDFs without
// persisting anything. The client reviews the result before confirming.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	files, status, msg := s.readUploadFiles(r)
	if msg != "" {
		writeError(w, status, msg)
		return
	}

	docs := make([]provider.Document, 0, len(files))
	for _, f := range files {
		docs = append(docs, provider.Document{
			Filename:     f.Filename,
			Data:         f.Data,
			DeclaredType: f.DocumentType,
		})
	}

	result, err := s.extractor.Extract(r.Context(), docs)
	if err != nil {
		zap.L().Error("extraction failed",
			zap.String("user_id", userID(r)),
			zap.Int("documents", len(docs)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "extraction failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleConfirm persists a user-reviewed extraction as a contract: blobs
// first, then the contract row with its file rows.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	files, status, msg := s.readUploadFiles(r)
	if msg != "" {
		writeError(w, status, msg)
		return
	}

	uid := userID(r)
	contract, errMsg := contractFromForm(r, uid)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	contract.ID = uuid.New().String()

	for i, f := range files {
		contract.Files = append(contract.Files, model.ContractFile{
			ContractID:   contract.ID,
			UserID:       uid,
			Path:         blob.ObjectPath(uid, contract.ID, f.Filename),
			Name:         f.Filename,
			Size:         int64(len(f.Data)),
			Label:        f.Label,
			DocumentType: f.DocumentType,
			DisplayOrder: i,
		})
	}

	g, ctx := errgroup.WithContext(r.Context())
	for i := range files {
		f := files[i]
		path := contract.Files[i].Path
		g.Go(func() error {
			return s.storage.Upload(ctx, path, f.Data, "application/pdf")
		})
	}
	if err := g.Wait(); err != nil {
		zap.L().Error("blob upload failed", zap.String("user_id", uid), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to upload file")
		return
	}

	created, err := s.store.CreateContract(r.Context(), *contract)
	if err != nil {
		writeStoreError(w, err, "contract")
		return
	}
	writeJSON(w, http.StatusOK, created)
}

// contractFromForm builds a contract from confirm-time form fields, applying
// the same closed-set validation the extraction schema uses.
func contractFromForm(r *http.Request, uid string) (*model.Contract, string) {
	form := r.MultipartForm.Value
	get := func(key string) string {
		if v, ok := form[key]; ok && len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	providerName := get("provider_name")
	if providerName == "" {
		return nil, "provider name is required"
	}

	c := &model.Contract{
		UserID:       uid,
		ProviderName: providerName,
		Nickname:     get("contract_nickname"),
		Currency:     extraction.NormalizeCurrency(get("currency")),
		UserVerified: true,
	}

	if raw := get("contract_type"); raw != "" {
		ct := model.ContractType(strings.ToLower(raw))
		if !model.ValidContractTypes[ct] {
			return nil, "invalid contract type"
		}
		c.ContractType = &ct
	}
	if raw := get("payment_frequency"); raw != "" {
		pf := model.PaymentFrequency(strings.ToLower(raw))
		if model.ValidPaymentFrequencies[pf] {
			c.PaymentFrequency = &pf
		}
	}
	if raw := get("monthly_cost"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return nil, "monthly cost must be a non-negative number"
		}
		c.MonthlyCost = &v
	}
	if raw := get("annual_cost"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return nil, "annual cost must be a non-negative number"
		}
		c.AnnualCost = &v
	}
	if raw := get("cancellation_notice_days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return nil, "cancellation notice days must be a non-negative integer"
		}
		c.CancellationNoticeDays = &v
	}
	if raw := get("start_date"); raw != "" {
		c.StartDate = &raw
	}
	if raw := get("end_date"); raw != "" {
		c.EndDate = &raw
	}
	if raw := get("auto_renewal"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err == nil {
			c.AutoRenewal = &v
		}
	}
	if raw := get("extraction_confidence"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			c.ExtractionConfidence = &v
		}
	}

	// JSON array fields arrive as strings; invalid JSON is dropped, not fatal.
	if raw := get("key_terms"); raw != "" {
		var terms []string
		if err := json.Unmarshal([]byte(raw), &terms); err == nil {
			c.KeyTerms = terms
		}
	}
	if raw := get("parties"); raw != "" {
		var parties []model.Party
		if err := json.Unmarshal([]byte(raw), &parties); err == nil {
			c.Parties = parties
		}
	}
	if raw := get("risks"); raw != "" {
		var risks []model.Risk
		if err := json.Unmarshal([]byte(raw), &risks); err == nil {
			c.Risks = risks
		}
	}

	return c, ""
}
