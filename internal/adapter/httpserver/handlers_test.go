package httpserver_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ad-moderation/internal/adapter/httpserver"
	"github.com/fairyhunter13/ad-moderation/internal/domain"
)

type stubEntities struct {
	userErr  error
	adErr    error
	closeErr error
	closed   domain.CloseResult
}

func (s *stubEntities) CreateUser(_ domain.Context, id int64, verified bool) (domain.User, error) {
	if s.userErr != nil {
		return domain.User{}, s.userErr
	}
	return domain.User{ID: id, IsVerifiedSeller: verified}, nil
}

func (s *stubEntities) CreateAdvertisement(_ domain.Context, ad domain.Advertisement) (domain.Advertisement, error) {
	if s.adErr != nil {
		return domain.Advertisement{}, s.adErr
	}
	ad.IsVerifiedSeller = true
	return ad, nil
}

func (s *stubEntities) CloseAdvertisement(_ domain.Context, itemID int64) (domain.CloseResult, error) {
	if s.closeErr != nil {
		return domain.CloseResult{}, s.closeErr
	}
	s.closed.ItemID = itemID
	return s.closed, nil
}

type stubPredict struct {
	prediction domain.Prediction
	err        error
}

func (s *stubPredict) Predict(domain.Advertisement) (domain.Prediction, error) {
	return s.prediction, s.err
}

func (s *stubPredict) SimplePredict(_ domain.Context, _ int64) (domain.Prediction, error) {
	return s.prediction, s.err
}

type stubModeration struct {
	task domain.Task
	view domain.TaskStatusView
	err  error
}

func (s *stubModeration) Enqueue(_ domain.Context, _ int64) (domain.Task, error) {
	return s.task, s.err
}

func (s *stubModeration) GetTaskStatus(_ domain.Context, _ int64) (domain.TaskStatusView, error) {
	return s.view, s.err
}

func newTestRouter(entities *stubEntities, predict *stubPredict, moderation *stubModeration) http.Handler {
	r := chi.NewRouter()
	httpserver.NewServer(entities, predict, moderation).Routes(r)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateUser(t *testing.T) {
	t.Parallel()

	h := newTestRouter(&stubEntities{}, &stubPredict{}, &stubModeration{})
	rec := doRequest(t, h, http.MethodPost, "/users", `{"id": 7, "is_verified_seller": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(7), resp["id"])
	assert.Equal(t, true, resp["is_verified_seller"])
}

func TestCreateUser_Duplicate(t *testing.T) {
	t.Parallel()

	entities := &stubEntities{userErr: fmt.Errorf("op=user.create: %w", domain.ErrAlreadyExists)}
	h := newTestRouter(entities, &stubPredict{}, &stubModeration{})
	rec := doRequest(t, h, http.MethodPost, "/users", `{"id": 7}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "User already exists")
}

func TestCreateUser_MissingID(t *testing.T) {
	t.Parallel()

	h := newTestRouter(&stubEntities{}, &stubPredict{}, &stubModeration{})
	rec := doRequest(t, h, http.MethodPost, "/users", `{"is_verified_seller": true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateAdvertisement(t *testing.T) {
	t.Parallel()

	h := newTestRouter(&stubEntities{}, &stubPredict{}, &stubModeration{})
	body := `{"seller_id": 7, "item_id": 42, "name": "Bike", "description": "A fine bike", "category": 3, "images_qty": 0}`
	rec := doRequest(t, h, http.MethodPost, "/advertisements", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(42), resp["item_id"])
	assert.Equal(t, true, resp["is_verified_seller"])
}

func TestCreateAdvertisement_SellerMissing(t *testing.T) {
	t.Parallel()

	entities := &stubEntities{adErr: fmt.Errorf("op=advert.create: %w", domain.ErrSellerNotFound)}
	h := newTestRouter(entities, &stubPredict{}, &stubModeration{})
	body := `{"seller_id": 7, "item_id": 42, "name": "Bike", "description": "A fine bike", "category": 3, "images_qty": 1}`
	rec := doRequest(t, h, http.MethodPost, "/advertisements", body)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Seller not found")
}

func TestCreateAdvertisement_ValidationFailures(t *testing.T) {
	t.Parallel()

	h := newTestRouter(&stubEntities{}, &stubPredict{}, &stubModeration{})
	cases := []string{
		`{"seller_id": 7, "item_id": 42, "name": "", "description": "x", "category": 3, "images_qty": 1}`,
		`{"seller_id": -1, "item_id": 42, "name": "Bike", "description": "x", "category": 3, "images_qty": 1}`,
		`{"seller_id": 7, "name": "Bike", "description": "x", "category": 3, "images_qty": 1}`,
		`not json`,
	}
	for _, body := range cases {
		rec := doRequest(t, h, http.MethodPost, "/advertisements", body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
	}
}

func TestCloseAdvertisement(t *testing.T) {
	t.Parallel()

	entities := &stubEntities{closed: domain.CloseResult{TaskIDs: []int64{3, 5}}}
	h := newTestRouter(entities, &stubPredict{}, &stubModeration{})
	rec := doRequest(t, h, http.MethodPost, "/close", `{"item_id": 42}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(42), resp["item_id"])
	assert.Equal(t, "closed", resp["status"])
	assert.Equal(t, "Advertisement closed", resp["message"])
}

func TestCloseAdvertisement_NotFound(t *testing.T) {
	t.Parallel()

	entities := &stubEntities{closeErr: fmt.Errorf("op=advert.close: %w", domain.ErrNotFound)}
	h := newTestRouter(entities, &stubPredict{}, &stubModeration{})
	rec := doRequest(t, h, http.MethodPost, "/close", `{"item_id": 42}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Advertisement not found")
}

func TestPredict(t *testing.T) {
	t.Parallel()

	predict := &stubPredict{prediction: domain.Prediction{IsValid: true, Probability: 0.37}}
	h := newTestRouter(&stubEntities{}, predict, &stubModeration{})
	body := `{"seller_id": 7, "is_verified_seller": true, "item_id": 42, "name": "Bike", "description": "x", "category": 3, "images_qty": 1}`
	rec := doRequest(t, h, http.MethodPost, "/predict", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsValid)
	assert.InDelta(t, 0.37, resp.Probability, 1e-9)
}

func TestPredict_ModelNotLoaded(t *testing.T) {
	t.Parallel()

	predict := &stubPredict{err: fmt.Errorf("op=scorer.predict: %w", domain.ErrScorerNotLoaded)}
	h := newTestRouter(&stubEntities{}, predict, &stubModeration{})
	body := `{"seller_id": 7, "is_verified_seller": false, "item_id": 42, "name": "Bike", "description": "x", "category": 3, "images_qty": 1}`
	rec := doRequest(t, h, http.MethodPost, "/predict", body)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Model is not loaded")
}

func TestSimplePredict(t *testing.T) {
	t.Parallel()

	predict := &stubPredict{prediction: domain.Prediction{IsValid: false, Probability: 0.9}}
	h := newTestRouter(&stubEntities{}, predict, &stubModeration{})
	rec := doRequest(t, h, http.MethodGet, "/simple_predict?item_id=42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"probability":0.9`)
}

func TestSimplePredict_BadItemID(t *testing.T) {
	t.Parallel()

	h := newTestRouter(&stubEntities{}, &stubPredict{}, &stubModeration{})
	for _, path := range []string{"/simple_predict", "/simple_predict?item_id=abc", "/simple_predict?item_id=-1"} {
		rec := doRequest(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, path)
	}
}

func TestAsyncPredict(t *testing.T) {
	t.Parallel()

	moderation := &stubModeration{task: domain.Task{ID: 5, Status: domain.TaskPending}}
	h := newTestRouter(&stubEntities{}, &stubPredict{}, moderation)
	rec := doRequest(t, h, http.MethodPost, "/async_predict", `{"item_id": 42}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(5), resp["task_id"])
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, "Moderation request accepted", resp["message"])
}

func TestAsyncPredict_UnknownListing(t *testing.T) {
	t.Parallel()

	moderation := &stubModeration{err: fmt.Errorf("op=advert.select: %w", domain.ErrNotFound)}
	h := newTestRouter(&stubEntities{}, &stubPredict{}, moderation)
	rec := doRequest(t, h, http.MethodPost, "/async_predict", `{"item_id": 42}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Advertisement not found")
}

func TestModerationResult(t *testing.T) {
	t.Parallel()

	isViolation := true
	probability := 0.91
	moderation := &stubModeration{view: domain.TaskStatusView{
		TaskID:      5,
		Status:      domain.TaskCompleted,
		IsViolation: &isViolation,
		Probability: &probability,
	}}
	h := newTestRouter(&stubEntities{}, &stubPredict{}, moderation)
	rec := doRequest(t, h, http.MethodGet, "/moderation_result/5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.TaskStatusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(5), resp.TaskID)
	assert.Equal(t, domain.TaskCompleted, resp.Status)
	require.NotNil(t, resp.IsViolation)
	assert.True(t, *resp.IsViolation)
}

func TestModerationResult_PendingHasNullFields(t *testing.T) {
	t.Parallel()

	moderation := &stubModeration{view: domain.TaskStatusView{TaskID: 5, Status: domain.TaskPending}}
	h := newTestRouter(&stubEntities{}, &stubPredict{}, moderation)
	rec := doRequest(t, h, http.MethodGet, "/moderation_result/5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_violation":null`)
	assert.Contains(t, rec.Body.String(), `"probability":null`)
}

func TestModerationResult_NotFound(t *testing.T) {
	t.Parallel()

	moderation := &stubModeration{err: fmt.Errorf("op=task.get: %w", domain.ErrNotFound)}
	h := newTestRouter(&stubEntities{}, &stubPredict{}, moderation)
	rec := doRequest(t, h, http.MethodGet, "/moderation_result/404", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Moderation task not found")
}

func TestModerationResult_BadTaskID(t *testing.T) {
	t.Parallel()

	h := newTestRouter(&stubEntities{}, &stubPredict{}, &stubModeration{})
	rec := doRequest(t, h, http.MethodGet, "/moderation_result/-1", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
