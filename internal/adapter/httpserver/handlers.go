package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ad-moderation/internal/domain"
)

// EntityUsecase covers seller and listing lifecycle operations.
type EntityUsecase interface {
	CreateUser(ctx domain.Context, id int64, isVerifiedSeller bool) (domain.User, error)
	CreateAdvertisement(ctx domain.Context, ad domain.Advertisement) (domain.Advertisement, error)
	CloseAdvertisement(ctx domain.Context, itemID int64) (domain.CloseResult, error)
}

// PredictUsecase covers synchronous scoring.
type PredictUsecase interface {
	Predict(ad domain.Advertisement) (domain.Prediction, error)
	SimplePredict(ctx domain.Context, itemID int64) (domain.Prediction, error)
}

// ModerationUsecase covers the asynchronous moderation path.
type ModerationUsecase interface {
	Enqueue(ctx domain.Context, itemID int64) (domain.Task, error)
	GetTaskStatus(ctx domain.Context, taskID int64) (domain.TaskStatusView, error)
}

// Server holds the handler dependencies.
type Server struct {
	Entities   EntityUsecase
	Predict    PredictUsecase
	Moderation ModerationUsecase

	validate *validator.Validate
}

// NewServer constructs a Server.
func NewServer(entities EntityUsecase, predict PredictUsecase, moderation ModerationUsecase) *Server {
	return &Server{
		Entities:   entities,
		Predict:    predict,
		Moderation: moderation,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes mounts all API endpoints on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/users", s.handleCreateUser)
	r.Post("/advertisements", s.handleCreateAdvertisement)
	r.Post("/close", s.handleCloseAdvertisement)
	r.Post("/predict", s.handlePredict)
	r.Get("/simple_predict", s.handleSimplePredict)
	r.Post("/async_predict", s.handleAsyncPredict)
	r.Get("/moderation_result/{task_id}", s.handleModerationResult)
}

type userRequest struct {
	ID               *int64 `json:"id" validate:"required,gte=0"`
	IsVerifiedSeller bool   `json:"is_verified_seller"`
}

type userResponse struct {
	ID               int64 `json:"id"`
	IsVerifiedSeller bool  `json:"is_verified_seller"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.Entities.CreateUser(r.Context(), *req.ID, req.IsVerifiedSeller)
	if err != nil {
		slog.Error("create user failed", slog.Any("error", err))
		writeDomainError(w, err, "User")
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: u.ID, IsVerifiedSeller: u.IsVerifiedSeller})
}

type advertisementRequest struct {
	SellerID    *int64 `json:"seller_id" validate:"required,gte=0"`
	ItemID      *int64 `json:"item_id" validate:"required,gte=0"`
	Name        string `json:"name" validate:"required,min=1"`
	Description string `json:"description" validate:"required,min=1"`
	Category    *int   `json:"category" validate:"required,gte=0"`
	ImagesQty   *int   `json:"images_qty" validate:"required,gte=0"`
}

type advertisementResponse struct {
	SellerID         int64  `json:"seller_id"`
	IsVerifiedSeller bool   `json:"is_verified_seller"`
	ItemID           int64  `json:"item_id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	Category         int    `json:"category"`
	ImagesQty        int    `json:"images_qty"`
}

func (s *Server) handleCreateAdvertisement(w http.ResponseWriter, r *http.Request) {
	var req advertisementRequest
	if !s.decode(w, r, &req) {
		return
	}
	ad, err := s.Entities.CreateAdvertisement(r.Context(), domain.Advertisement{
		ItemID:      *req.ItemID,
		SellerID:    *req.SellerID,
		Name:        req.Name,
		Description: req.Description,
		Category:    *req.Category,
		ImagesQty:   *req.ImagesQty,
	})
	if err != nil {
		slog.Error("create advertisement failed", slog.Any("error", err))
		writeDomainError(w, err, "Advertisement")
		return
	}
	writeJSON(w, http.StatusOK, advertisementResponse{
		SellerID:         ad.SellerID,
		IsVerifiedSeller: ad.IsVerifiedSeller,
		ItemID:           ad.ItemID,
		Name:             ad.Name,
		Description:      ad.Description,
		Category:         ad.Category,
		ImagesQty:        ad.ImagesQty,
	})
}

type closeRequest struct {
	ItemID *int64 `json:"item_id" validate:"required,gte=0"`
}

type closeResponse struct {
	ItemID  int64  `json:"item_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleCloseAdvertisement(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.Entities.CloseAdvertisement(r.Context(), *req.ItemID)
	if err != nil {
		slog.Error("close advertisement failed", slog.Int64("item_id", *req.ItemID), slog.Any("error", err))
		writeDomainError(w, err, "Advertisement")
		return
	}
	writeJSON(w, http.StatusOK, closeResponse{
		ItemID:  res.ItemID,
		Status:  "closed",
		Message: "Advertisement closed",
	})
}

type predictRequest struct {
	SellerID         *int64 `json:"seller_id" validate:"required,gte=0"`
	IsVerifiedSeller *bool  `json:"is_verified_seller" validate:"required"`
	ItemID           *int64 `json:"item_id" validate:"required,gte=0"`
	Name             string `json:"name" validate:"required,min=1"`
	Description      string `json:"description" validate:"required,min=1"`
	Category         *int   `json:"category" validate:"required,gte=0"`
	ImagesQty        *int   `json:"images_qty" validate:"required,gte=0"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.Predict.Predict(domain.Advertisement{
		ItemID:           *req.ItemID,
		SellerID:         *req.SellerID,
		Name:             req.Name,
		Description:      req.Description,
		Category:         *req.Category,
		ImagesQty:        *req.ImagesQty,
		IsVerifiedSeller: *req.IsVerifiedSeller,
	})
	if err != nil {
		slog.Error("predict failed", slog.Int64("item_id", *req.ItemID), slog.Any("error", err))
		writeDomainError(w, err, "Advertisement")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSimplePredict(w http.ResponseWriter, r *http.Request) {
	itemID, ok := parseIDParam(w, r.URL.Query().Get("item_id"))
	if !ok {
		return
	}
	p, err := s.Predict.SimplePredict(r.Context(), itemID)
	if err != nil {
		slog.Error("simple predict failed", slog.Int64("item_id", itemID), slog.Any("error", err))
		writeDomainError(w, err, "Advertisement")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type asyncPredictRequest struct {
	ItemID *int64 `json:"item_id" validate:"required,gte=0"`
}

type asyncPredictResponse struct {
	TaskID  int64             `json:"task_id"`
	Status  domain.TaskStatus `json:"status"`
	Message string            `json:"message"`
}

func (s *Server) handleAsyncPredict(w http.ResponseWriter, r *http.Request) {
	var req asyncPredictRequest
	if !s.decode(w, r, &req) {
		return
	}
	task, err := s.Moderation.Enqueue(r.Context(), *req.ItemID)
	if err != nil {
		slog.Error("async predict failed", slog.Int64("item_id", *req.ItemID), slog.Any("error", err))
		writeDomainError(w, err, "Advertisement")
		return
	}
	writeJSON(w, http.StatusOK, asyncPredictResponse{
		TaskID:  task.ID,
		Status:  task.Status,
		Message: "Moderation request accepted",
	})
}

func (s *Server) handleModerationResult(w http.ResponseWriter, r *http.Request) {
	taskID, ok := parseIDParam(w, chi.URLParam(r, "task_id"))
	if !ok {
		return
	}
	view, err := s.Moderation.GetTaskStatus(r.Context(), taskID)
	if err != nil {
		slog.Error("moderation result failed", slog.Int64("task_id", taskID), slog.Any("error", err))
		writeDomainError(w, err, "Moderation task")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// decode parses and validates a JSON request body, answering 422 on any
// shape or constraint violation.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Validation failed: "+err.Error())
		return false
	}
	return true
}

// parseIDParam parses a non-negative id from a query or path parameter.
func parseIDParam(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid id parameter")
		return 0, false
	}
	return id, true
}
