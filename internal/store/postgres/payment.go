package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dvrhoads/njord/internal/domain"
)

// PaymentStore implements store.PaymentStore.
type PaymentStore struct {
	pool *pgxpool.Pool
}

const paymentColumns = `
	id, order_id, method, amount_cents, currency, status, refunded_cents,
	gateway_order_id, external_transaction_id, idempotency_key, created_at, updated_at`

const getPaymentSQL = `SELECT` + paymentColumns + ` FROM payments WHERE id = $1`

const getPaymentByOrderSQL = `SELECT` + paymentColumns + ` FROM payments WHERE order_id = $1`

const getPaymentByExternalSQL = `SELECT` + paymentColumns + ` FROM payments WHERE external_transaction_id = $1`

const getPaymentByKeySQL = `SELECT` + paymentColumns + ` FROM payments WHERE idempotency_key = $1`

const setGatewayOrderSQL = `
	UPDATE payments SET gateway_order_id = $2, updated_at = now() WHERE id = $1`

// transitionPaymentSQL is conditional on the current status so the
// reconciler's race losers land on zero rows instead of overwriting a
// terminal state. An empty transaction id keeps whatever is stored.
const transitionPaymentSQL = `
	UPDATE payments
	SET status = $2,
		external_transaction_id = COALESCE(NULLIF($3, ''), external_transaction_id),
		updated_at = $4
	WHERE id = $1 AND status = $5`

const insertAttemptSQL = `
	INSERT INTO payment_attempts (id, payment_id, kind, status, gateway_transaction_id, error_message, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

const listAttemptsSQL = `
	SELECT id, payment_id, kind, status, gateway_transaction_id, error_message, created_at
	FROM payment_attempts WHERE payment_id = $1 ORDER BY created_at`

// applyRefundSQL only lands when the cumulative refund stays within the
// captured amount; the balance invariant is the database's to enforce.
const applyRefundSQL = `
	UPDATE payments SET refunded_cents = refunded_cents + $2, updated_at = now()
	WHERE id = $1 AND refunded_cents + $2 <= amount_cents
	RETURNING refunded_cents`

const insertRefundSQL = `
	INSERT INTO refunds (id, payment_id, amount_cents, status, reason, gateway_refund_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (s *PaymentStore) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return scanPayment(s.pool.QueryRow(ctx, getPaymentSQL, id))
}

func (s *PaymentStore) GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	return scanPayment(s.pool.QueryRow(ctx, getPaymentByOrderSQL, orderID))
}

func (s *PaymentStore) GetPaymentByExternalID(ctx context.Context, externalTxnID string) (*domain.Payment, error) {
	return scanPayment(s.pool.QueryRow(ctx, getPaymentByExternalSQL, externalTxnID))
}

func (s *PaymentStore) GetPaymentByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	return scanPayment(s.pool.QueryRow(ctx, getPaymentByKeySQL, key))
}

func (s *PaymentStore) SetGatewayOrder(ctx context.Context, paymentID uuid.UUID, gatewayOrderID string) error {
	tag, err := s.pool.Exec(ctx, setGatewayOrderSQL, paymentID, gatewayOrderID)
	if err != nil {
		return domain.Internal(err, "payment.set_gateway_order", "failed to record gateway order")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (s *PaymentStore) TransitionPayment(ctx context.Context, paymentID uuid.UUID, from, to domain.PaymentStatus, externalTxnID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, transitionPaymentSQL, paymentID, to, externalTxnID, at, from)
	if err != nil {
		return domain.Internal(err, "payment.transition", "failed to update payment status")
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT true FROM payments WHERE id = $1`, paymentID).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrPaymentNotFound
			}
			return domain.Internal(err, "payment.transition", "failed to check payment")
		}
		return domain.ErrPaymentStateConflict
	}
	return nil
}

func (s *PaymentStore) CreateAttempt(ctx context.Context, attempt *domain.PaymentAttempt) error {
	_, err := s.pool.Exec(ctx, insertAttemptSQL,
		attempt.ID, attempt.PaymentID, attempt.Kind, attempt.Status,
		attempt.GatewayTransactionID, attempt.ErrorMessage, attempt.CreatedAt)
	if err != nil {
		return domain.Internal(err, "payment.create_attempt", "failed to record payment attempt")
	}
	return nil
}

func (s *PaymentStore) ListAttempts(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentAttempt, error) {
	rows, err := s.pool.Query(ctx, listAttemptsSQL, paymentID)
	if err != nil {
		return nil, domain.Internal(err, "payment.list_attempts", "failed to load attempts")
	}
	attempts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PaymentAttempt, error) {
		var a domain.PaymentAttempt
		err := row.Scan(&a.ID, &a.PaymentID, &a.Kind, &a.Status, &a.GatewayTransactionID, &a.ErrorMessage, &a.CreatedAt)
		return a, err
	})
	if err != nil {
		return nil, domain.Internal(err, "payment.list_attempts", "failed to scan attempts")
	}
	return attempts, nil
}

func (s *PaymentStore) ApplyRefund(ctx context.Context, refund *domain.Refund) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, domain.Internal(err, "payment.apply_refund", "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	var refundedCents int64
	err = tx.QueryRow(ctx, applyRefundSQL, refund.PaymentID, refund.AmountCents).Scan(&refundedCents)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.Internal(err, "payment.apply_refund", "failed to increment refunded amount")
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT true FROM payments WHERE id = $1`, refund.PaymentID).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, domain.ErrPaymentNotFound
			}
			return 0, domain.Internal(err, "payment.apply_refund", "failed to check payment")
		}
		return 0, domain.ErrRefundExceedsAvailable
	}

	_, err = tx.Exec(ctx, insertRefundSQL,
		refund.ID, refund.PaymentID, refund.AmountCents, refund.Status,
		refund.Reason, refund.GatewayRefundID, refund.CreatedAt)
	if err != nil {
		return 0, domain.Internal(err, "payment.apply_refund", "failed to insert refund")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, domain.Internal(err, "payment.apply_refund", "failed to commit refund")
	}
	return refundedCents, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Method, &p.AmountCents, &p.Currency, &p.Status, &p.RefundedCents,
		&p.GatewayOrderID, &p.ExternalTransactionID, &p.IdempotencyKey, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, domain.Internal(err, "payment.get", "failed to load payment")
	}
	return &p, nil
}
