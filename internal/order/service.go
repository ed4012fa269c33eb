package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/marketmitra/stockly/internal/payment"
	"github.com/marketmitra/stockly/internal/product"
)

var (
	ErrEmptyOrder            = errors.New("order must contain at least one item")
	ErrSignatureMismatch     = errors.New("payment signature verification failed")
	ErrInvalidDeliveryStatus = errors.New("invalid delivery status")
)

const (
	currency          = "INR"
	estimatedShipping = 5 * 24 * time.Hour
)

type NewOrderItem struct {
	ProductID uuid.UUID
	Quantity  int
}

type CreateOrderInput struct {
	UserID          uuid.UUID
	Items           []NewOrderItem
	TotalAmount     float64
	ShippingAddress ShippingAddress
}

type VerifyPaymentInput struct {
	GatewayOrderID string
	PaymentID      string
	Signature      string
}

type CreateOrderResult struct {
	GatewayOrder *payment.GatewayOrder
	Order        *Order
}

// ConfirmationSender delivers the order-confirmation email. Failures are
// the caller's to log; sending is fire-and-forget from the order's point
// of view.
type ConfirmationSender interface {
	SendOrderConfirmation(ctx context.Context, email string, o *Order) error
}

type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*Order, error)
	RetryPayment(ctx context.Context, id uuid.UUID) (*CreateOrderResult, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrderByRef(ctx context.Context, ref string) (*Order, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
	SetDeliveryStatus(ctx context.Context, id uuid.UUID, status DeliveryStatus) (*Order, error)
	AddNote(ctx context.Context, id uuid.UUID, text string) (*Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	SendConfirmation(ctx context.Context, ref, email string) error

	ReconcilePendingOrders(ctx context.Context, now time.Time) error
	AdvanceDeliveryStatuses(ctx context.Context, now time.Time) error
	PurgeFailedOrders(ctx context.Context, now time.Time) (int64, error)
}

type service struct {
	orders   Repository
	products product.Repository
	gateway  payment.Gateway
	notifier ConfirmationSender

	pendingStaleAfter time.Duration
	failedRetention   time.Duration
}

func NewService(orders Repository, products product.Repository, gateway payment.Gateway, notifier ConfirmationSender, pendingStaleAfter, failedRetention time.Duration) Service {
	return &service{
		orders:            orders,
		products:          products,
		gateway:           gateway,
		notifier:          notifier,
		pendingStaleAfter: pendingStaleAfter,
		failedRetention:   failedRetention,
	}
}

// CreateOrder validates stock, snapshots prices, opens a gateway order
// and persists the order in pending state. Stock is NOT decremented
// here: inventory is only committed once payment is confirmed, so an
// abandoned payment sheet never locks units.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if len(input.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	if input.TotalAmount <= 0 {
		return nil, fmt.Errorf("service: total amount must be positive, got %f", input.TotalAmount)
	}

	items := make([]OrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("service: quantity for product %s must be at least 1", item.ProductID)
		}

		p, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrProductNotFound) {
				return nil, fmt.Errorf("service: product %s not found: %w", item.ProductID, err)
			}
			return nil, fmt.Errorf("service: failed to look up product %s: %w", item.ProductID, err)
		}
		if p.Stock < item.Quantity {
			return nil, fmt.Errorf("service: only %d units available for %s: %w",
				p.Stock, p.Name, product.ErrInsufficientStock)
		}

		// Price and owning admin are captured now, not joined at read
		// time.
		items = append(items, OrderItem{
			ProductID: p.ID,
			Quantity:  item.Quantity,
			Price:     p.Price,
			CreatedBy: p.CreatedBy,
		})
	}

	now := time.Now().UTC()

	// The gateway call goes first: if it fails, no local order is left
	// behind.
	gwOrder, err := s.gateway.CreateOrder(ctx, toPaise(input.TotalAmount), currency, fmt.Sprintf("order_%d", now.UnixMilli()))
	if err != nil {
		log.Error().Err(err).Msg("service: gateway order creation failed")
		return nil, fmt.Errorf("service: failed to open gateway order: %w", err)
	}

	o := &Order{
		OrderRef:          NewOrderRef(now),
		UserID:            input.UserID,
		Items:             items,
		TotalAmount:       input.TotalAmount,
		GatewayOrderID:    gwOrder.ID,
		PaymentStatus:     PaymentPending,
		EstimatedDelivery: now.Add(estimatedShipping),
		ShippingAddress:   input.ShippingAddress,
	}

	if err := s.orders.Create(ctx, o); err != nil {
		log.Error().Err(err).Str("gateway_order_id", gwOrder.ID).Msg("service: failed to persist order")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().
		Stringer("order_id", o.ID).
		Str("order_ref", o.OrderRef).
		Str("gateway_order_id", gwOrder.ID).
		Float64("total_amount", o.TotalAmount).
		Msg("service: order created, awaiting payment")

	return &CreateOrderResult{GatewayOrder: gwOrder, Order: o}, nil
}

// VerifyPayment authenticates the client-side payment callback and, on
// success, runs the single confirm-payment path shared with the
// reconciliation job.
func (s *service) VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*Order, error) {
	if !s.gateway.VerifySignature(input.GatewayOrderID, input.PaymentID, input.Signature) {
		log.Warn().
			Str("gateway_order_id", input.GatewayOrderID).
			Msg("service: payment signature mismatch")
		return nil, ErrSignatureMismatch
	}

	o, err := s.confirmPayment(ctx, input.GatewayOrderID, input.PaymentID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	return o, nil
}

// confirmPayment is the one place an order becomes paid, regardless of
// whether the client callback or the reconciliation job detected the
// payment. Stock bookkeeping cannot diverge between the two triggers.
func (s *service) confirmPayment(ctx context.Context, gatewayOrderID, paymentID string, now time.Time) (*Order, error) {
	o, err := s.orders.ConfirmPayment(ctx, gatewayOrderID, paymentID, now)
	if err != nil {
		if errors.Is(err, product.ErrInsufficientStock) {
			// Oversold: another order consumed the units between the
			// stock check at creation time and this confirmation. The
			// order stays pending and the failure is reportable.
			log.Error().Err(err).
				Str("gateway_order_id", gatewayOrderID).
				Msg("service: payment confirmed by gateway but stock ran out")
		}
		return nil, fmt.Errorf("service: failed to confirm payment: %w", err)
	}

	log.Info().
		Stringer("order_id", o.ID).
		Str("gateway_payment_id", paymentID).
		Msg("service: payment confirmed, stock committed")

	return o, nil
}

// RetryPayment opens a fresh gateway order for the same total and swaps
// it onto the existing order so the client can reopen a payment sheet.
// Delivery state and stock are untouched.
func (s *service) RetryPayment(ctx context.Context, id uuid.UUID) (*CreateOrderResult, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order for retry: %w", err)
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, toPaise(o.TotalAmount), currency, "retry_"+o.OrderRef)
	if err != nil {
		return nil, fmt.Errorf("service: failed to open gateway order for retry: %w", err)
	}

	now := time.Now().UTC()
	if err := s.orders.SetGatewayOrder(ctx, o.ID, gwOrder.ID, now); err != nil {
		return nil, fmt.Errorf("service: failed to reassign gateway order: %w", err)
	}

	o.GatewayOrderID = gwOrder.ID
	o.UpdatedAt = now

	log.Info().
		Stringer("order_id", o.ID).
		Str("gateway_order_id", gwOrder.ID).
		Msg("service: payment retry issued")

	return &CreateOrderResult{GatewayOrder: gwOrder, Order: o}, nil
}

func (s *service) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}
	return o, nil
}

func (s *service) GetOrderByRef(ctx context.Context, ref string) (*Order, error) {
	o, err := s.orders.GetByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order by ref: %w", err)
	}
	return o, nil
}

func (s *service) ListUserOrders(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}
	return orders, nil
}

func (s *service) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}
	return orders, nil
}

// SetDeliveryStatus is the admin manual override. The time-based job
// only ever advances statuses, so a manual value holds until elapsed
// time ranks past it.
func (s *service) SetDeliveryStatus(ctx context.Context, id uuid.UUID, status DeliveryStatus) (*Order, error) {
	if status.Rank() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDeliveryStatus, status)
	}

	if err := s.orders.UpdateDeliveryStatus(ctx, id, status, time.Now().UTC()); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to update delivery status: %w", err)
	}

	return s.GetOrderByID(ctx, id)
}

func (s *service) AddNote(ctx context.Context, id uuid.UUID, text string) (*Order, error) {
	if text == "" {
		return nil, errors.New("service: note text is required")
	}

	if err := s.orders.AppendNote(ctx, id, text, time.Now().UTC()); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to append note: %w", err)
	}

	return s.GetOrderByID(ctx, id)
}

func (s *service) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	if err := s.orders.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to delete order: %w", err)
	}

	log.Info().Stringer("order_id", id).Msg("service: order deleted")
	return nil
}

func (s *service) SendConfirmation(ctx context.Context, ref, email string) error {
	o, err := s.GetOrderByRef(ctx, ref)
	if err != nil {
		return err
	}

	if err := s.notifier.SendOrderConfirmation(ctx, email, o); err != nil {
		return fmt.Errorf("service: failed to send confirmation email: %w", err)
	}

	return nil
}

// ReconcilePendingOrders resolves pending orders older than the
// staleness threshold against the gateway's authoritative state. A
// failure on one order never aborts the rest of the batch.
func (s *service) ReconcilePendingOrders(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.pendingStaleAfter)

	stale, err := s.orders.ListPendingCreatedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("service: failed to list stale pending orders: %w", err)
	}

	log.Info().Int("count", len(stale)).Msg("service: reconciling stale pending orders")

	for _, o := range stale {
		gwOrder, err := s.gateway.FetchOrder(ctx, o.GatewayOrderID)
		if err != nil {
			log.Error().Err(err).
				Stringer("order_id", o.ID).
				Str("gateway_order_id", o.GatewayOrderID).
				Msg("service: failed to fetch gateway order, skipping")
			continue
		}

		if gwOrder.Status == "paid" {
			// The settled payment arrived without a client callback; the
			// gateway order fetch carries no payment id.
			if _, err := s.confirmPayment(ctx, o.GatewayOrderID, o.GatewayPaymentID, now); err != nil {
				log.Error().Err(err).Stringer("order_id", o.ID).Msg("service: reconciliation confirm failed")
			}
			continue
		}

		// Stock was never decremented for a pending order, so failing it
		// needs no restoration. Delivery status is cleared.
		if err := s.orders.MarkFailed(ctx, o.ID, now); err != nil {
			log.Error().Err(err).Stringer("order_id", o.ID).Msg("service: failed to mark order failed")
			continue
		}
		log.Info().Stringer("order_id", o.ID).Msg("service: stale pending order marked failed")
	}

	return nil
}

// AdvanceDeliveryStatuses recomputes each paid order's delivery status
// from elapsed time since payment verification. It only ever moves a
// status forward, so repeated runs are idempotent and admin overrides
// are never rolled back.
func (s *service) AdvanceDeliveryStatuses(ctx context.Context, now time.Time) error {
	paid, err := s.orders.ListPaid(ctx)
	if err != nil {
		return fmt.Errorf("service: failed to list paid orders: %w", err)
	}

	for _, o := range paid {
		target := DeliveryStatusForAge(now.Sub(o.PaymentAnchor()))
		if o.DeliveryStatus != nil && target.Rank() <= o.DeliveryStatus.Rank() {
			continue
		}

		if err := s.orders.UpdateDeliveryStatus(ctx, o.ID, target, now); err != nil {
			log.Error().Err(err).
				Stringer("order_id", o.ID).
				Stringer("target_status", target).
				Msg("service: failed to advance delivery status")
			continue
		}
		log.Info().
			Stringer("order_id", o.ID).
			Stringer("delivery_status", target).
			Msg("service: delivery status advanced")
	}

	return nil
}

// PurgeFailedOrders permanently deletes failed orders older than the
// retention window. Failed orders never committed stock, so deletion has
// no inventory side effects.
func (s *service) PurgeFailedOrders(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.failedRetention)

	deleted, err := s.orders.DeleteFailedCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("service: failed to purge failed orders: %w", err)
	}

	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("service: purged failed orders")
	}

	return deleted, nil
}

func toPaise(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
