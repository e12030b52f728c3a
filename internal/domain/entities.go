// Package domain holds the core entities, ports, and error taxonomy of the
// ad moderation service. It stays dependency-free so adapters remain
// swappable.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrSellerNotFound     = errors.New("seller not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrQueueUnavailable   = errors.New("queue unavailable")
	ErrScorerNotLoaded    = errors.New("scorer not loaded")
	ErrScorerFailed       = errors.New("scorer failed")
	ErrInvalidInput       = errors.New("invalid input")
)

// TaskStatus enumerates the moderation task lifecycle.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether the status allows no further transitions.
func (s TaskStatus) Terminal() bool { return s == TaskCompleted || s == TaskFailed }

// User is a seller account. Lifecycle is external to the moderation core.
type User struct {
	ID               int64
	IsVerifiedSeller bool
}

// Advertisement is a classified-ad listing, immutable after create.
// IsVerifiedSeller is joined in from the owning user on reads.
type Advertisement struct {
	ItemID           int64
	SellerID         int64
	Name             string
	Description      string
	Category         int
	ImagesQty        int
	IsVerifiedSeller bool
}

// Task is one moderation attempt on a listing.
// Invariants: at most one pending task per ItemID; IsViolation and
// Probability are set iff completed; ErrorMessage is set iff failed.
type Task struct {
	ID           int64
	ItemID       int64
	Status       TaskStatus
	IsViolation  *bool
	Probability  *float64
	ErrorMessage *string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// CloseResult reports what a listing closure removed.
type CloseResult struct {
	ItemID  int64
	TaskIDs []int64
}

// Prediction is the synchronous scoring response shape, cached per listing.
type Prediction struct {
	IsValid     bool    `json:"is_valid"`
	Probability float64 `json:"probability"`
}

// TaskStatusView is the task-status response shape, cached per task id.
type TaskStatusView struct {
	TaskID      int64      `json:"task_id"`
	Status      TaskStatus `json:"status"`
	IsViolation *bool      `json:"is_violation"`
	Probability *float64   `json:"probability"`
}

// Repositories (ports)

type UserRepository interface {
	Create(ctx Context, id int64, isVerifiedSeller bool) (User, error)
}

type AdvertisementRepository interface {
	Create(ctx Context, ad Advertisement) (Advertisement, error)
	Select(ctx Context, itemID int64) (Advertisement, error)
	// Close deletes the listing and all of its task rows atomically. It
	// returns ErrNotFound when the listing does not exist, regardless of
	// orphan tasks.
	Close(ctx Context, itemID int64) (CloseResult, error)
}

type TaskRepository interface {
	// CreatePending returns an existing pending or completed task for the
	// listing when one exists (pending preferred, ties broken by highest id)
	// and inserts a fresh pending row otherwise.
	CreatePending(ctx Context, itemID int64) (Task, error)
	Get(ctx Context, taskID int64) (Task, error)
	// ClaimAndComplete transitions the oldest pending task for the listing to
	// completed. Returns 0 when no pending row could be claimed.
	ClaimAndComplete(ctx Context, itemID int64, isViolation bool, probability float64) (int64, error)
	// ClaimAndFail transitions the oldest pending task for the listing to
	// failed, storing the message truncated to 1000 characters. Returns 0
	// when no pending row could be claimed.
	ClaimAndFail(ctx Context, itemID int64, errorMessage string) (int64, error)
	// MarkEventProcessed records a bus event id after a terminal transition.
	// It reports false when the event was already recorded.
	MarkEventProcessed(ctx Context, eventID string, itemID, taskID int64) (bool, error)
	IsEventProcessed(ctx Context, eventID string) (bool, error)
}

// Caches (ports). Implementations return errors; callers treat every cache
// failure as a miss and never surface it.

type PredictionCache interface {
	Get(ctx Context, itemID int64) (*Prediction, error)
	Set(ctx Context, itemID int64, p Prediction) error
	Delete(ctx Context, itemID int64) error
}

type TaskCache interface {
	Get(ctx Context, taskID int64) (*TaskStatusView, error)
	Set(ctx Context, v TaskStatusView) error
	Delete(ctx Context, taskID int64) error
}

// Queue (port)

type Queue interface {
	// PublishModerationRequest publishes a moderation request for the listing
	// and waits for broker acknowledgement.
	PublishModerationRequest(ctx Context, itemID int64) error
}

// Scorer (port) returns the probability of a listing violating the rules,
// in [0,1]. ViolationThreshold is inclusive.

type Scorer interface {
	PredictProbability(ad Advertisement) (float64, error)
}

// ViolationThreshold is the probability at or above which a listing is
// marked as a violation.
const ViolationThreshold = 0.5

// MaxErrorMessageLen bounds persisted task error messages.
const MaxErrorMessageLen = 1000

// Context is an alias so the domain package does not force adapters through
// a custom context abstraction.
type Context = context.Context
