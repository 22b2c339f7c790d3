package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/contract-optimizer/internal/auth"
	"github.com/sells-group/contract-optimizer/internal/model"
	"github.com/sells-group/contract-optimizer/internal/provider"
	"github.com/sells-group/contract-optimizer/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const testSecret = "test-secret"

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) Upload(_ context.Context, path string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = data
	return nil
}

func (f *fakeStorage) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, path)
	return nil
}

func (f *fakeStorage) PresignedURL(_ context.Context, path string, _ time.Duration) (string, error) {
	return "https://blobs.test/" + path, nil
}

type stubExtractor struct {
	result  *model.ExtractionResult
	err     error
	gotDocs []provider.Document
}

func (e *stubExtractor) Extract(_ context.Context, docs []provider.Document) (*model.ExtractionResult, error) {
	e.gotDocs = docs
	return e.result, e.err
}

type stubRecommender struct {
	recs []model.Recommendation
	err  error
}

func (r *stubRecommender) Generate(_ context.Context, userID string, _ []model.Contract, _ map[string]bool) ([]model.Recommendation, error) {
	for i := range r.recs {
		r.recs[i].UserID = userID
	}
	return r.recs, r.err
}

type testServer struct {
	router      http.Handler
	store       store.Store
	storage     *fakeStorage
	extractor   *stubExtractor
	recommender *stubRecommender
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	storage := newFakeStorage()
	extractor := &stubExtractor{result: &model.ExtractionResult{Confidence: 0.9, Currency: "USD", KeyTerms: []string{}}}
	recommender := &stubRecommender{}

	srv := New(st, storage, auth.NewJWTVerifier(testSecret), extractor, recommender, Config{})
	return &testServer{
		router:      srv.Router(),
		store:       st,
		storage:     storage,
		extractor:   extractor,
		recommender: recommender,
	}
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, userID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func authedRequest(t *testing.T, method, target, userID string, body *bytes.Buffer, contentType string) *http.Request {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	req.Header.Set("Authorization", bearerToken(t, userID))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

// multipartBody builds a multipart form with the given PDF filenames (all
// carrying the same placeholder bytes) plus form fields.
func multipartBody(t *testing.T, filenames []string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range filenames {
		fw, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("%PDF-1.4 test"))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth_NoAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestAPI_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/contracts/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/contracts/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = ts.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtract(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartBody(t, []string{"lease.pdf"}, map[string]string{
		"document_types": "main_agreement",
	})
	rec := ts.do(t, authedRequest(t, http.MethodPost, "/api/upload/extract", "u1", body, contentType))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.extractor.gotDocs, 1)
	assert.Equal(t, "lease.pdf", ts.extractor.gotDocs[0].Filename)
	assert.Equal(t, model.DocMainAgreement, ts.extractor.gotDocs[0].DeclaredType)

	result := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, 0.9, result["confidence"])
}

func TestExtract_RejectsNonPDF(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartBody(t, []string{"notes.txt"}, nil)
	rec := ts.do(t, authedRequest(t, http.MethodPost, "/api/upload/extract", "u1", body, contentType))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	detail := decodeJSON[map[string]string](t, rec)
	assert.Equal(t, "only PDF files are supported", detail["detail"])
}

func TestExtract_RejectsTooManyFiles(t *testing.T) {
	ts := newTestServer(t)

	names := []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf", "f.pdf"}
	body, contentType := multipartBody(t, names, nil)
	rec := ts.do(t, authedRequest(t, http.MethodPost, "/api/upload/extract", "u1", body, contentType))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtract_RequiresFiles(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartBody(t, nil, map[string]string{"provider_name": "Acme"})
	rec := ts.do(t, authedRequest(t, http.MethodPost, "/api/upload/extract", "u1", body, contentType))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirm_PersistsContractAndBlobs(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartBody(t, []string{"policy.pdf"}, map[string]string{
		"provider_name": "State Farm",
		"contract_type": "insurance",
		"monthly_cost":  "130",
		"currency":      "$",
		"auto_renewal":  "true",
		"key_terms":     `["comprehensive"]`,
	})
	rec := ts.do(t, authedRequest(t, http.MethodPost, "/api/upload/confirm", "u1", body, contentType))

	require.Equal(t, http.StatusOK, rec.Code)
	created := decodeJSON[model.Contract](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "State Farm", created.ProviderName)
	assert.Equal(t, "USD", created.Currency)
	assert.True(t, created.UserVerified)
	require.Len(t, created.Files, 1)
	assert.Equal(t, "u1/"+created.ID+"/policy.pdf", created.Files[0].Path)

	ts.storage.mu.Lock()
	_, stored := ts.storage.objects[created.Files[0].Path]
	ts.storage.mu.Unlock()
	assert.True(t, stored)

	got, err := ts.store.GetContract(context.Background(), "u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"comprehensive"}, got.KeyTerms)
	require.NotNil(t, got.AutoRenewal)
	assert.True(t, *got.AutoRenewal)
}

func TestConfirm_RequiresProviderName(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartBody(t, []string{"policy.pdf"}, nil)
	rec := ts.do(t, authedRequest(t, http.MethodPost, "/api/upload/confirm", "u1", body, contentType))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	detail := decodeJSON[map[string]string](t, rec)
	assert.Equal(t, "provider name is required", detail["detail"])
}

func TestConfirm_RejectsInvalidContractType(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartBody(t, []string{"policy.pdf"}, map[string]string{
		"provider_name": "Acme",
		"contract_type": "mortgage",
	})
	rec := ts.do(t, authedRequest(t, http.MethodPost, "/api/upload/confirm", "u1", body, contentType))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func seedContract(t *testing.T, ts *testServer, userID string) *model.Contract {
	t.Helper()
	ctype := model.ContractTypeUtility
	cost := 80.0
	created, err := ts.store.CreateContract(context.Background(), model.Contract{
		UserID:       userID,
		ProviderName: "City Power",
		ContractType: &ctype,
		MonthlyCost:  &cost,
	})
	require.NoError(t, err)
	return created
}

func TestListContracts_EmptyIsArray(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, authedRequest(t, http.MethodGet, "/api/contracts/", "u1", nil, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestListContracts_ScopedToUser(t *testing.T) {
	ts := newTestServer(t)
	seedContract(t, ts, "u1")
	seedContract(t, ts, "u2")

	rec := ts.do(t, authedRequest(t, http.MethodGet, "/api/contracts/", "u1", nil, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	contracts := decodeJSON[[]model.Contract](t, rec)
	require.Len(t, contracts, 1)
	assert.Equal(t, "u1", contracts[0].UserID)
}

func TestGetContract_OtherUsersIs404(t *testing.T) {
	ts := newTestServer(t)
	c := seedContract(t, ts, "u1")

	rec := ts.do(t, authedRequest(t, http.MethodGet, "/api/contracts/"+c.ID, "u2", nil, ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateContract(t *testing.T) {
	ts := newTestServer(t)
	c := seedContract(t, ts, "u1")

	payload, err := json.Marshal(map[string]any{"provider_name": "Green Power", "monthly_cost": 70})
	require.NoError(t, err)
	rec := ts.do(t, authedRequest(t, http.MethodPut, "/api/contracts/"+c.ID, "u1", bytes.NewBuffer(payload), "application/json"))

	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeJSON[model.Contract](t, rec)
	assert.Equal(t, "Green Power", updated.ProviderName)
	assert.Equal(t, c.ID, updated.ID)
}

func TestUpdateContract_RejectsNegativeCost(t *testing.T) {
	ts := newTestServer(t)
	c := seedContract(t, ts, "u1")

	payload := []byte(`{"provider_name": "X", "monthly_cost": -5}`)
	rec := ts.do(t, authedRequest(t, http.MethodPut, "/api/contracts/"+c.ID, "u1", bytes.NewBuffer(payload), "application/json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteContract_RemovesBlobs(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartBody(t, []string{"bill.pdf"}, map[string]string{"provider_name": "City Power"})
	rec := ts.do(t, authedRequest(t, http.MethodPost, "/api/upload/confirm", "u1", body, contentType))
	require.Equal(t, http.StatusOK, rec.Code)
	created := decodeJSON[model.Contract](t, rec)

	rec = ts.do(t, authedRequest(t, http.MethodDelete, "/api/contracts/"+created.ID, "u1", nil, ""))
	require.Equal(t, http.StatusOK, rec.Code)

	ts.storage.mu.Lock()
	remaining := len(ts.storage.objects)
	ts.storage.mu.Unlock()
	assert.Equal(t, 0, remaining)

	getRec := ts.do(t, authedRequest(t, http.MethodGet, "/api/contracts/"+created.ID, "u1", nil, ""))
	assert.Equal(t, http.StatusNotFound, getRec.Code)
}

func TestFileURL(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartBody(t, []string{"policy.pdf"}, map[string]string{"provider_name": "Acme"})
	rec := ts.do(t, authedRequest(t, http.MethodPost, "/api/upload/confirm", "u1", body, contentType))
	require.Equal(t, http.StatusOK, rec.Code)
	created := decodeJSON[model.Contract](t, rec)
	require.Len(t, created.Files, 1)

	target := "/api/contracts/" + created.ID + "/files/" + created.Files[0].ID + "/url"
	rec = ts.do(t, authedRequest(t, http.MethodGet, target, "u1", nil, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJSON[map[string]string](t, rec)
	assert.Equal(t, "https://blobs.test/"+created.Files[0].Path, got["url"])
	assert.Equal(t, "policy.pdf", got["name"])

	rec = ts.do(t, authedRequest(t, http.MethodGet, "/api/contracts/"+created.ID+"/files/nope/url", "u1", nil, ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContractSummary(t *testing.T) {
	ts := newTestServer(t)
	seedContract(t, ts, "u1")
	seedContract(t, ts, "u1")

	rec := ts.do(t, authedRequest(t, http.MethodGet, "/api/contracts/summary", "u1", nil, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeJSON[model.ContractSummary](t, rec)
	assert.Equal(t, 2, summary.TotalContracts)
	assert.Equal(t, 160.0, summary.TotalMonthly)
	assert.Equal(t, 2, summary.ContractsByType["utility"])
}

func TestGenerateRecommendations_NoContracts(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, authedRequest(t, http.MethodPost, "/api/recommendations/generate", "u1", nil, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestGenerateRecommendations_PersistsOutput(t *testing.T) {
	ts := newTestServer(t)
	c := seedContract(t, ts, "u1")
	ts.recommender.recs = []model.Recommendation{
		{ContractID: &c.ID, Type: model.RecCostReduction, Title: "Negotiate", Priority: model.PriorityHigh, Confidence: 0.8},
	}

	rec := ts.do(t, authedRequest(t, http.MethodPost, "/api/recommendations/generate", "u1", nil, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	created := decodeJSON[[]model.Recommendation](t, rec)
	require.Len(t, created, 1)
	assert.NotEmpty(t, created[0].ID)
	assert.Equal(t, model.StatusPending, created[0].Status)

	listRec := ts.do(t, authedRequest(t, http.MethodGet, "/api/recommendations/", "u1", nil, ""))
	listed := decodeJSON[[]model.Recommendation](t, listRec)
	assert.Len(t, listed, 1)
}

func seedRecommendation(t *testing.T, ts *testServer, userID string) model.Recommendation {
	t.Helper()
	recs, err := ts.store.CreateRecommendations(context.Background(), []model.Recommendation{
		{UserID: userID, Type: model.RecRiskAlert, Title: "Check terms", Priority: model.PriorityMedium, Confidence: 0.5},
	})
	require.NoError(t, err)
	return recs[0]
}

func TestGetRecommendation_MarksViewed(t *testing.T) {
	ts := newTestServer(t)
	seeded := seedRecommendation(t, ts, "u1")

	rec := ts.do(t, authedRequest(t, http.MethodGet, "/api/recommendations/"+seeded.ID, "u1", nil, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJSON[model.Recommendation](t, rec)
	assert.Equal(t, model.StatusViewed, got.Status)

	// Second read keeps it viewed.
	rec = ts.do(t, authedRequest(t, http.MethodGet, "/api/recommendations/"+seeded.ID, "u1", nil, ""))
	got = decodeJSON[model.Recommendation](t, rec)
	assert.Equal(t, model.StatusViewed, got.Status)
}

func TestUpdateRecommendation_LegalTransition(t *testing.T) {
	ts := newTestServer(t)
	seeded := seedRecommendation(t, ts, "u1")

	payload := []byte(`{"status": "accepted"}`)
	rec := ts.do(t, authedRequest(t, http.MethodPut, "/api/recommendations/"+seeded.ID, "u1", bytes.NewBuffer(payload), "application/json"))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJSON[model.Recommendation](t, rec)
	assert.Equal(t, model.StatusAccepted, got.Status)
	assert.NotNil(t, got.ActedOnAt)
}

func TestUpdateRecommendation_IllegalTransition(t *testing.T) {
	ts := newTestServer(t)
	seeded := seedRecommendation(t, ts, "u1")

	payload := []byte(`{"status": "accepted"}`)
	rec := ts.do(t, authedRequest(t, http.MethodPut, "/api/recommendations/"+seeded.ID, "u1", bytes.NewBuffer(payload), "application/json"))
	require.Equal(t, http.StatusOK, rec.Code)

	payload = []byte(`{"status": "dismissed"}`)
	rec = ts.do(t, authedRequest(t, http.MethodPut, "/api/recommendations/"+seeded.ID, "u1", bytes.NewBuffer(payload), "application/json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	detail := decodeJSON[map[string]string](t, rec)
	assert.Equal(t, "illegal status transition", detail["detail"])
}

func TestRateLimit(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	srv := New(st, newFakeStorage(), auth.NewJWTVerifier(testSecret), &stubExtractor{}, &stubRecommender{}, Config{
		RateLimitRPS:   0.001,
		RateLimitBurst: 1,
	})
	router := srv.Router()

	first := httptest.NewRecorder()
	router.ServeHTTP(first, authedRequest(t, http.MethodGet, "/api/contracts/", "u1", nil, ""))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, authedRequest(t, http.MethodGet, "/api/contracts/", "u1", nil, ""))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
