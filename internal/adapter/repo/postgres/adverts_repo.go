package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ad-moderation/internal/domain"
)

// AdvertRepo persists and loads advertisements.
type AdvertRepo struct{ Pool PgxPool }

// NewAdvertRepo constructs an AdvertRepo with the given pool.
func NewAdvertRepo(p PgxPool) *AdvertRepo { return &AdvertRepo{Pool: p} }

const selectAdvertQuery = `
SELECT
	a.item_id,
	a.seller_id,
	a.name,
	a.description,
	a.category,
	a.images_qty,
	u.is_verified_seller
FROM advertisements AS a
JOIN users AS u ON u.id = a.seller_id
WHERE a.item_id = $1`

// Create inserts a new advertisement after checking the seller exists.
// The check and the insert run on one connection; a concurrent insert of the
// same item_id collapses into the unique violation.
func (r *AdvertRepo) Create(ctx domain.Context, ad domain.Advertisement) (domain.Advertisement, error) {
	tracer := otel.Tracer("repo.adverts")
	ctx, span := tracer.Start(ctx, "adverts.Create")
	defer span.End()

	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return domain.Advertisement{}, fmt.Errorf("op=advert.create: %w: %v", domain.ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var verified bool
	err = tx.QueryRow(ctx, `SELECT is_verified_seller FROM users WHERE id = $1`, ad.SellerID).Scan(&verified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Advertisement{}, fmt.Errorf("op=advert.create: %w", domain.ErrSellerNotFound)
		}
		return domain.Advertisement{}, fmt.Errorf("op=advert.create: %w: %v", domain.ErrStorageUnavailable, err)
	}

	q := `INSERT INTO advertisements (item_id, seller_id, name, description, category, images_qty)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING item_id, seller_id, name, description, category, images_qty`
	var out domain.Advertisement
	err = tx.QueryRow(ctx, q, ad.ItemID, ad.SellerID, ad.Name, ad.Description, ad.Category, ad.ImagesQty).
		Scan(&out.ItemID, &out.SellerID, &out.Name, &out.Description, &out.Category, &out.ImagesQty)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Advertisement{}, fmt.Errorf("op=advert.create: %w", domain.ErrAlreadyExists)
		}
		return domain.Advertisement{}, fmt.Errorf("op=advert.create: %w: %v", domain.ErrStorageUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Advertisement{}, fmt.Errorf("op=advert.create: %w: %v", domain.ErrStorageUnavailable, err)
	}
	out.IsVerifiedSeller = verified
	return out, nil
}

// Select loads an advertisement joined with its seller's verification flag.
func (r *AdvertRepo) Select(ctx domain.Context, itemID int64) (domain.Advertisement, error) {
	tracer := otel.Tracer("repo.adverts")
	ctx, span := tracer.Start(ctx, "adverts.Select")
	defer span.End()
	row := r.Pool.QueryRow(ctx, selectAdvertQuery, itemID)
	var ad domain.Advertisement
	err := row.Scan(&ad.ItemID, &ad.SellerID, &ad.Name, &ad.Description, &ad.Category, &ad.ImagesQty, &ad.IsVerifiedSeller)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Advertisement{}, fmt.Errorf("op=advert.select: %w", domain.ErrNotFound)
		}
		return domain.Advertisement{}, fmt.Errorf("op=advert.select: %w: %v", domain.ErrStorageUnavailable, err)
	}
	return ad, nil
}

// Close deletes the advertisement and all of its task rows in one
// transaction, returning the ids of the deleted tasks.
func (r *AdvertRepo) Close(ctx domain.Context, itemID int64) (domain.CloseResult, error) {
	tracer := otel.Tracer("repo.adverts")
	ctx, span := tracer.Start(ctx, "adverts.Close")
	defer span.End()

	q := `
WITH deleted_results AS (
	DELETE FROM moderation_results
	WHERE item_id = $1
	RETURNING id
),
deleted_advertisement AS (
	DELETE FROM advertisements
	WHERE item_id = $1
	RETURNING item_id
)
SELECT
	deleted_advertisement.item_id,
	COALESCE(
		(SELECT array_agg(id ORDER BY id) FROM deleted_results),
		'{}'::BIGINT[]
	)
FROM deleted_advertisement`

	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return domain.CloseResult{}, fmt.Errorf("op=advert.close: %w: %v", domain.ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var res domain.CloseResult
	err = tx.QueryRow(ctx, q, itemID).Scan(&res.ItemID, &res.TaskIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CloseResult{}, fmt.Errorf("op=advert.close: %w", domain.ErrNotFound)
		}
		return domain.CloseResult{}, fmt.Errorf("op=advert.close: %w: %v", domain.ErrStorageUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.CloseResult{}, fmt.Errorf("op=advert.close: %w: %v", domain.ErrStorageUnavailable, err)
	}
	return res, nil
}
