package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dvrhoads/njord/internal/domain"
)

// CouponStore implements store.CouponStore.
type CouponStore struct {
	pool *pgxpool.Pool
}

const couponColumns = `
	id, code, type, discount_value::text, min_order_cents, max_discount_cents,
	usage_limit, user_usage_limit, usage_count, valid_from, valid_to,
	included_products, excluded_products, included_categories, excluded_categories,
	buy_quantity, get_quantity, bulk_tiers, active, created_at`

const getCouponByCodeSQL = `SELECT` + couponColumns + ` FROM coupons WHERE code = $1`

const getCouponSQL = `SELECT` + couponColumns + ` FROM coupons WHERE id = $1`

// reserveUsageSQL is the compare-and-increment: the increment only lands
// when the limit still has room, and the row lock it takes serializes
// every concurrent reservation for the same coupon.
const reserveUsageSQL = `
	UPDATE coupons SET usage_count = usage_count + 1
	WHERE id = $1 AND (usage_limit = 0 OR usage_count < usage_limit)`

const countUserUsageSQL = `
	SELECT count(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`

const insertUsageSQL = `
	INSERT INTO coupon_usages (id, coupon_id, order_id, user_id, discount_cents, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

const deleteUsageSQL = `
	DELETE FROM coupon_usages WHERE coupon_id = $1 AND order_id = $2`

const releaseCountSQL = `
	UPDATE coupons SET usage_count = usage_count - 1 WHERE id = $1 AND usage_count > 0`

const userUsageLimitSQL = `SELECT user_usage_limit FROM coupons WHERE id = $1`

func (s *CouponStore) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return scanCoupon(s.pool.QueryRow(ctx, getCouponByCodeSQL, code))
}

func (s *CouponStore) GetCoupon(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	return scanCoupon(s.pool.QueryRow(ctx, getCouponSQL, id))
}

func (s *CouponStore) CountUserUsage(ctx context.Context, couponID uuid.UUID, userID string) (int32, error) {
	var n int32
	if err := s.pool.QueryRow(ctx, countUserUsageSQL, couponID, userID).Scan(&n); err != nil {
		return 0, domain.Internal(err, "coupon.count_user_usage", "failed to count coupon usage")
	}
	return n, nil
}

func (s *CouponStore) ReserveUsage(ctx context.Context, usage *domain.CouponUsage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Internal(err, "coupon.reserve", "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := reserveUsageTx(ctx, tx, usage); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Internal(err, "coupon.reserve", "failed to commit reservation")
	}
	return nil
}

func (s *CouponStore) ReleaseUsage(ctx context.Context, couponID, orderID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Internal(err, "coupon.release", "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, deleteUsageSQL, couponID, orderID)
	if err != nil {
		return domain.Internal(err, "coupon.release", "failed to delete usage row")
	}
	if tag.RowsAffected() == 0 {
		// Nothing was reserved for this order; releasing is a no-op.
		return nil
	}
	if _, err := tx.Exec(ctx, releaseCountSQL, couponID); err != nil {
		return domain.Internal(err, "coupon.release", "failed to decrement usage count")
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Internal(err, "coupon.release", "failed to commit release")
	}
	return nil
}

// reserveUsageTx runs the atomic reservation inside the caller's
// transaction so order creation can make it part of its all-or-nothing
// commit. The conditional increment goes first: its row lock serializes
// the per-user count that follows.
func reserveUsageTx(ctx context.Context, tx pgx.Tx, usage *domain.CouponUsage) error {
	tag, err := tx.Exec(ctx, reserveUsageSQL, usage.CouponID)
	if err != nil {
		return domain.Internal(err, "coupon.reserve", "failed to increment usage count")
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT true FROM coupons WHERE id = $1`, usage.CouponID).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrCouponNotFound
			}
			return domain.Internal(err, "coupon.reserve", "failed to check coupon")
		}
		return domain.ErrUsageLimitReached
	}

	var userLimit int32
	if err := tx.QueryRow(ctx, userUsageLimitSQL, usage.CouponID).Scan(&userLimit); err != nil {
		return domain.Internal(err, "coupon.reserve", "failed to read user limit")
	}
	if userLimit > 0 {
		var used int32
		if err := tx.QueryRow(ctx, countUserUsageSQL, usage.CouponID, usage.UserID).Scan(&used); err != nil {
			return domain.Internal(err, "coupon.reserve", "failed to count user usage")
		}
		if used >= userLimit {
			return domain.ErrUserUsageLimitReached
		}
	}

	_, err = tx.Exec(ctx, insertUsageSQL,
		usage.ID, usage.CouponID, usage.OrderID, usage.UserID, usage.DiscountCents, usage.CreatedAt)
	if err != nil {
		return domain.Internal(err, "coupon.reserve", "failed to insert usage row")
	}
	return nil
}

func scanCoupon(row pgx.Row) (*domain.Coupon, error) {
	var (
		c         domain.Coupon
		value     string
		tiersJSON []byte
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Type, &value, &c.MinOrderCents, &c.MaxDiscountCents,
		&c.UsageLimit, &c.UserUsageLimit, &c.UsageCount, &c.ValidFrom, &c.ValidTo,
		&c.IncludedProducts, &c.ExcludedProducts, &c.IncludedCategories, &c.ExcludedCategories,
		&c.BuyQuantity, &c.GetQuantity, &tiersJSON, &c.Active, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, domain.Internal(err, "coupon.get", "failed to load coupon")
	}

	c.DiscountValue, err = decimal.NewFromString(value)
	if err != nil {
		return nil, domain.Internal(err, "coupon.get", "invalid discount value")
	}
	if len(tiersJSON) > 0 {
		if err := json.Unmarshal(tiersJSON, &c.BulkTiers); err != nil {
			return nil, domain.Internal(err, "coupon.get", "invalid bulk tiers")
		}
	}
	return &c, nil
}
