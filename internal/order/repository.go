package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/marketmitra/stockly/internal/product"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrOrderNotPending = errors.New("order is not pending payment")
	ErrPaymentConflict = errors.New("order already paid with a different payment")
)

type ListFilter struct {
	PaymentStatus PaymentStatus
	From          time.Time
	To            time.Time
}

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByRef(ctx context.Context, ref string) (*Order, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)
	ConfirmPayment(ctx context.Context, gatewayOrderID, paymentID string, now time.Time) (*Order, error)
	MarkFailed(ctx context.Context, id uuid.UUID, now time.Time) error
	SetGatewayOrder(ctx context.Context, id uuid.UUID, gatewayOrderID string, now time.Time) error
	UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status DeliveryStatus, now time.Time) error
	AppendNote(ctx context.Context, id uuid.UUID, text string, now time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]Order, error)
	ListPaid(ctx context.Context) ([]Order, error)
	DeleteFailedCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type postgresRepository struct {
	db       *pgxpool.Pool
	products product.Repository
}

func NewRepository(db *pgxpool.Pool, products product.Repository) Repository {
	return &postgresRepository{db: db, products: products}
}

const orderColumns = `id, order_ref, user_id, total_amount, gateway_order_id, gateway_payment_id,
	payment_status, delivery_status, estimated_delivery,
	shipping_street, shipping_city, shipping_state, shipping_postal_code, shipping_country,
	payment_verified_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderRef, &o.UserID, &o.TotalAmount, &o.GatewayOrderID, &o.GatewayPaymentID,
		&o.PaymentStatus, &o.DeliveryStatus, &o.EstimatedDelivery,
		&o.ShippingAddress.Street, &o.ShippingAddress.City, &o.ShippingAddress.State,
		&o.ShippingAddress.PostalCode, &o.ShippingAddress.Country,
		&o.PaymentVerifiedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *postgresRepository) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		o.ID = id
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	queryOrder := `
		INSERT INTO orders (id, order_ref, user_id, total_amount, gateway_order_id, gateway_payment_id,
			payment_status, delivery_status, estimated_delivery,
			shipping_street, shipping_city, shipping_state, shipping_postal_code, shipping_country,
			payment_verified_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = tx.Exec(ctx, queryOrder,
		o.ID, o.OrderRef, o.UserID, o.TotalAmount, o.GatewayOrderID, o.GatewayPaymentID,
		string(o.PaymentStatus), o.DeliveryStatus, o.EstimatedDelivery,
		o.ShippingAddress.Street, o.ShippingAddress.City, o.ShippingAddress.State,
		o.ShippingAddress.PostalCode, o.ShippingAddress.Country,
		o.PaymentVerifiedAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (id, order_id, product_id, quantity, price, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i := range o.Items {
		item := &o.Items[i]

		itemID, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order item ID: %w", err)
		}
		item.ID = itemID
		item.OrderID = o.ID

		_, err = tx.Exec(ctx, queryItem,
			item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price, item.CreatedBy,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}

	return nil
}

func (r *postgresRepository) getOne(ctx context.Context, where string, arg any) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where

	o, err := scanOrder(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order: %w", err)
	}

	if err := r.loadItems(ctx, map[uuid.UUID]*Order{o.ID: o}); err != nil {
		return nil, err
	}
	if err := r.loadNotes(ctx, o); err != nil {
		return nil, err
	}

	return o, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *postgresRepository) GetByRef(ctx context.Context, ref string) (*Order, error) {
	return r.getOne(ctx, `order_ref = $1`, ref)
}

func (r *postgresRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error) {
	return r.getOne(ctx, `gateway_order_id = $1`, gatewayOrderID)
}

func (r *postgresRepository) loadItems(ctx context.Context, orders map[uuid.UUID]*Order) error {
	ids := make([]uuid.UUID, 0, len(orders))
	for id, o := range orders {
		o.Items = make([]OrderItem, 0)
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}

	query := `
		SELECT id, order_id, product_id, quantity, price, created_by
		FROM order_items
		WHERE order_id = ANY($1)
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price, &item.CreatedBy)
		if err != nil {
			return fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		if o, ok := orders[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("repository: error iterating order items: %w", err)
	}

	return nil
}

func (r *postgresRepository) loadNotes(ctx context.Context, o *Order) error {
	query := `SELECT note_text, created_at FROM order_notes WHERE order_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, o.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to query order notes: %w", err)
	}
	defer rows.Close()

	o.Notes = make([]OrderNote, 0)
	for rows.Next() {
		var n OrderNote
		if err := rows.Scan(&n.Text, &n.CreatedAt); err != nil {
			return fmt.Errorf("repository: failed to scan order note: %w", err)
		}
		o.Notes = append(o.Notes, n)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("repository: error iterating order notes: %w", err)
	}

	return nil
}

func (r *postgresRepository) list(ctx context.Context, where string, args ...any) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var ordered []uuid.UUID
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		ordersMap[o.ID] = o
		ordered = append(ordered, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	if err := r.loadItems(ctx, ordersMap); err != nil {
		return nil, err
	}

	result := make([]Order, 0, len(ordered))
	for _, id := range ordered {
		result = append(result, *ordersMap[id])
	}

	return result, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	return r.list(ctx, `user_id = $1`, userID)
}

func (r *postgresRepository) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	var (
		where string
		args  []any
	)
	and := func(cond string, arg any) {
		if where != "" {
			where += " AND "
		}
		args = append(args, arg)
		where += fmt.Sprintf(cond, len(args))
	}

	if filter.PaymentStatus != "" {
		and("payment_status = $%d", string(filter.PaymentStatus))
	}
	if !filter.From.IsZero() {
		and("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		and("created_at <= $%d", filter.To)
	}

	return r.list(ctx, where, args...)
}

type confirmOutcome int

// Outcomes of a confirmation attempt. Only confirmProceed reaches the
// flip-and-decrement transaction.
const (
	confirmProceed confirmOutcome = iota
	confirmReplay
	confirmAdopt
	confirmConflict
	confirmNotPending
)

// classifyConfirmation decides what a confirmation attempt may do given
// the order's current payment state: a pending order proceeds to the
// flip, a paid order replays (same or absent payment id) or adopts a
// payment id that was never recorded, two different recorded ids
// conflict, and a failed order is terminal. Every outcome except
// confirmProceed leaves stock untouched.
func classifyConfirmation(o *Order, paymentID string) confirmOutcome {
	switch o.PaymentStatus {
	case PaymentPaid:
		switch {
		case o.GatewayPaymentID == paymentID, paymentID == "":
			return confirmReplay
		case o.GatewayPaymentID == "":
			return confirmAdopt
		default:
			return confirmConflict
		}
	case PaymentFailed:
		return confirmNotPending
	default:
		return confirmProceed
	}
}

// ConfirmPayment flips a pending order to paid and decrements stock for
// every line item in one transaction. Replays with the same gateway
// payment id succeed without touching stock again; a callback carrying
// the real payment id after a reconciliation-driven confirm records the
// id without a second decrement; an under-stocked line item aborts the
// whole confirmation.
func (r *postgresRepository) ConfirmPayment(ctx context.Context, gatewayOrderID, paymentID string, now time.Time) (*Order, error) {
	o, err := r.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}

	switch classifyConfirmation(o, paymentID) {
	case confirmReplay:
		return o, nil
	case confirmAdopt:
		return r.adoptPaymentID(ctx, o, paymentID, now)
	case confirmConflict:
		return nil, ErrPaymentConflict
	case confirmNotPending:
		return nil, ErrOrderNotPending
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	flip := `
		UPDATE orders
		SET payment_status = $2, gateway_payment_id = $3, payment_verified_at = $4,
		    delivery_status = $5, updated_at = $4
		WHERE gateway_order_id = $1 AND payment_status = $6
	`
	cmdTag, err := tx.Exec(ctx, flip,
		gatewayOrderID, string(PaymentPaid), paymentID, now,
		string(DeliveryProcessing), string(PaymentPending),
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to mark order paid: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		// Lost the race to a concurrent confirmation. Re-read and fall
		// back to the replay rules.
		current, err := r.GetByGatewayOrderID(ctx, gatewayOrderID)
		if err != nil {
			return nil, err
		}
		switch classifyConfirmation(current, paymentID) {
		case confirmReplay:
			return current, nil
		case confirmAdopt:
			return r.adoptPaymentID(ctx, current, paymentID, now)
		case confirmConflict:
			return nil, ErrPaymentConflict
		}
		return nil, ErrOrderNotPending
	}

	for _, item := range o.Items {
		if err := r.products.DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			log.Warn().Err(err).
				Stringer("order_id", o.ID).
				Stringer("product_id", item.ProductID).
				Msg("repository: stock decrement failed, aborting payment confirmation")
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit payment confirmation: %w", err)
	}

	o.PaymentStatus = PaymentPaid
	o.GatewayPaymentID = paymentID
	o.PaymentVerifiedAt = &now
	ds := DeliveryProcessing
	o.DeliveryStatus = &ds
	o.UpdatedAt = now

	return o, nil
}

// adoptPaymentID records the payment id on an order that was confirmed
// without one (a reconciliation-driven confirm beat the client
// callback). Stock was committed by that confirmation; this is a
// metadata update only.
func (r *postgresRepository) adoptPaymentID(ctx context.Context, o *Order, paymentID string, now time.Time) (*Order, error) {
	query := `
		UPDATE orders
		SET gateway_payment_id = $2, updated_at = $3
		WHERE id = $1 AND payment_status = $4 AND gateway_payment_id = ''
	`
	cmdTag, err := r.db.Exec(ctx, query, o.ID, paymentID, now, string(PaymentPaid))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to record payment id for order %s: %w", o.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		current, err := r.GetByID(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		if current.PaymentStatus == PaymentPaid && current.GatewayPaymentID == paymentID {
			return current, nil
		}
		return nil, ErrPaymentConflict
	}

	o.GatewayPaymentID = paymentID
	o.UpdatedAt = now

	return o, nil
}

func (r *postgresRepository) MarkFailed(ctx context.Context, id uuid.UUID, now time.Time) error {
	query := `
		UPDATE orders
		SET payment_status = $2, delivery_status = NULL, updated_at = $3
		WHERE id = $1 AND payment_status = $4
	`
	cmdTag, err := r.db.Exec(ctx, query, id, string(PaymentFailed), now, string(PaymentPending))
	if err != nil {
		return fmt.Errorf("repository: failed to mark order %s failed: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotPending
	}

	return nil
}

func (r *postgresRepository) SetGatewayOrder(ctx context.Context, id uuid.UUID, gatewayOrderID string, now time.Time) error {
	query := `UPDATE orders SET gateway_order_id = $2, updated_at = $3 WHERE id = $1`

	cmdTag, err := r.db.Exec(ctx, query, id, gatewayOrderID, now)
	if err != nil {
		return fmt.Errorf("repository: failed to set gateway order for order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func (r *postgresRepository) UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status DeliveryStatus, now time.Time) error {
	query := `UPDATE orders SET delivery_status = $2, updated_at = $3 WHERE id = $1`

	cmdTag, err := r.db.Exec(ctx, query, id, string(status), now)
	if err != nil {
		return fmt.Errorf("repository: failed to update delivery status for order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func (r *postgresRepository) AppendNote(ctx context.Context, id uuid.UUID, text string, now time.Time) error {
	query := `
		INSERT INTO order_notes (order_id, note_text, created_at)
		SELECT id, $2, $3 FROM orders WHERE id = $1
	`
	cmdTag, err := r.db.Exec(ctx, query, id, text, now)
	if err != nil {
		return fmt.Errorf("repository: failed to append note to order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func (r *postgresRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]Order, error) {
	return r.list(ctx, `payment_status = $1 AND created_at < $2`, string(PaymentPending), cutoff)
}

func (r *postgresRepository) ListPaid(ctx context.Context) ([]Order, error) {
	return r.list(ctx, `payment_status = $1`, string(PaymentPaid))
}

func (r *postgresRepository) DeleteFailedCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM orders WHERE payment_status = $1 AND created_at < $2`

	cmdTag, err := r.db.Exec(ctx, query, string(PaymentFailed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to delete failed orders: %w", err)
	}

	return cmdTag.RowsAffected(), nil
}
