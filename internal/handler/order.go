package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/marketmitra/stockly/internal/order"
	"github.com/marketmitra/stockly/internal/product"
)

type OrderHandler struct {
	svc      order.Service
	validate *validator.Validate
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{svc: svc, validate: validator.New()}
}

type orderItemPayload struct {
	Product  string `json:"product" validate:"required,uuid4"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type shippingAddressPayload struct {
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required,numeric,len=6"`
	Country    string `json:"country"`
}

type createOrderRequest struct {
	User            string                 `json:"user" validate:"required,uuid4"`
	Products        []orderItemPayload     `json:"products" validate:"required,min=1,dive"`
	TotalAmount     float64                `json:"totalAmount" validate:"required,gt=0"`
	ShippingAddress shippingAddressPayload `json:"shippingAddress" validate:"required"`
}

type gatewayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type createOrderResponse struct {
	Success       bool                 `json:"success"`
	RazorpayOrder gatewayOrderResponse `json:"razorpayOrder"`
	Order         struct {
		ID          uuid.UUID         `json:"_id"`
		OrderRef    string            `json:"orderId"`
		TotalAmount float64           `json:"totalAmount"`
		Products    []order.OrderItem `json:"products"`
	} `json:"order"`
}

// CreateOrder handles POST /orders/create.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondValidationErrors(w, err)
		return
	}

	userID, err := uuid.FromString(req.User)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	items := make([]order.NewOrderItem, 0, len(req.Products))
	for _, p := range req.Products {
		productID, err := uuid.FromString(p.Product)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid product ID")
			return
		}
		items = append(items, order.NewOrderItem{ProductID: productID, Quantity: p.Quantity})
	}

	if req.ShippingAddress.Country == "" {
		req.ShippingAddress.Country = "India"
	}

	result, err := h.svc.CreateOrder(r.Context(), order.CreateOrderInput{
		UserID:      userID,
		Items:       items,
		TotalAmount: req.TotalAmount,
		ShippingAddress: order.ShippingAddress{
			Street:     req.ShippingAddress.Street,
			City:       req.ShippingAddress.City,
			State:      req.ShippingAddress.State,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Order creation failed")
		if errors.Is(err, product.ErrInsufficientStock) || errors.Is(err, product.ErrProductNotFound) {
			// The creation contract reports stock problems as request
			// errors naming the offending product.
			respondWithError(w, http.StatusBadRequest, trimServicePrefix(err))
			return
		}
		respondWithError(w, mapErrorToStatusCode(err), "Order creation failed")
		return
	}

	resp := createOrderResponse{Success: true}
	resp.RazorpayOrder = gatewayOrderResponse{
		ID:       result.GatewayOrder.ID,
		Amount:   result.GatewayOrder.Amount,
		Currency: result.GatewayOrder.Currency,
	}
	resp.Order.ID = result.Order.ID
	resp.Order.OrderRef = result.Order.OrderRef
	resp.Order.TotalAmount = result.Order.TotalAmount
	resp.Order.Products = result.Order.Items

	respondWithJSON(w, http.StatusOK, resp)
}

type verifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
}

type verifyPaymentResponse struct {
	Success      bool         `json:"success"`
	Order        *order.Order `json:"order"`
	DeliveryDate time.Time    `json:"deliveryDate"`
}

// VerifyPayment handles POST /orders/verify.
func (h *OrderHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondValidationErrors(w, err)
		return
	}

	o, err := h.svc.VerifyPayment(r.Context(), order.VerifyPaymentInput{
		GatewayOrderID: req.RazorpayOrderID,
		PaymentID:      req.RazorpayPaymentID,
		Signature:      req.RazorpaySignature,
	})
	if err != nil {
		if errors.Is(err, order.ErrSignatureMismatch) {
			respondWithJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"error":   "Payment verification failed",
			})
			return
		}
		log.Error().Err(err).Str("gateway_order_id", req.RazorpayOrderID).Msg("Payment verification error")
		respondWithError(w, mapErrorToStatusCode(err), "Payment verification error")
		return
	}

	respondWithJSON(w, http.StatusOK, verifyPaymentResponse{
		Success:      true,
		Order:        o,
		DeliveryDate: o.EstimatedDelivery,
	})
}

// ListUserOrders handles GET /orders/user/{userId}.
func (h *OrderHandler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.FromString(chi.URLParam(r, "userId"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	orders, err := h.svc.ListUserOrders(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to fetch user orders")
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

// ListOrders handles GET /orders and GET /orders/admin (with filters).
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var filter order.ListFilter

	if status := r.URL.Query().Get("status"); status != "" {
		filter.PaymentStatus = order.PaymentStatus(status)
	}
	if startDate := r.URL.Query().Get("startDate"); startDate != "" {
		from, err := time.Parse(time.RFC3339, startDate)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid startDate")
			return
		}
		filter.From = from
	}
	if endDate := r.URL.Query().Get("endDate"); endDate != "" {
		to, err := time.Parse(time.RFC3339, endDate)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid endDate")
			return
		}
		filter.To = to
	}

	orders, err := h.svc.ListOrders(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch orders")
		respondWithError(w, http.StatusInternalServerError, "Error fetching orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

// GetOrder handles GET /orders/{id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	o, err := h.svc.GetOrderByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("Failed to fetch order")
		respondWithError(w, http.StatusInternalServerError, "Error fetching order")
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateDeliveryStatus handles PATCH /orders/{id}/status (admin manual
// override).
func (h *OrderHandler) UpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondValidationErrors(w, err)
		return
	}

	o, err := h.svc.SetDeliveryStatus(r.Context(), id, order.DeliveryStatus(req.Status))
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", id).Msg("Status update failed")
		respondWithError(w, mapErrorToStatusCode(err), "Status update failed")
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

type retryPaymentResponse struct {
	Success       bool                 `json:"success"`
	RazorpayOrder gatewayOrderResponse `json:"razorpayOrder"`
	OrderID       uuid.UUID            `json:"orderId"`
}

// RetryPayment handles POST /orders/{id}/retry.
func (h *OrderHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	result, err := h.svc.RetryPayment(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			// Distinct code so the client navigates to order history
			// instead of retrying a nonexistent order.
			respondWithCodedError(w, http.StatusNotFound, "Order not found", "ORDER_NOT_FOUND")
			return
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("Payment retry failed")
		respondWithCodedError(w, http.StatusInternalServerError, "Payment retry failed", "RETRY_FAILED")
		return
	}

	respondWithJSON(w, http.StatusOK, retryPaymentResponse{
		Success: true,
		RazorpayOrder: gatewayOrderResponse{
			ID:       result.GatewayOrder.ID,
			Amount:   result.GatewayOrder.Amount,
			Currency: result.GatewayOrder.Currency,
		},
		OrderID: result.Order.ID,
	})
}

// DeleteOrder handles DELETE /orders/{id} (admin).
func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	if err := h.svc.DeleteOrder(r.Context(), id); err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("Failed to delete order")
		respondWithError(w, http.StatusInternalServerError, "Failed to delete order")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Order deleted successfully",
	})
}

type addNoteRequest struct {
	NoteText string `json:"noteText" validate:"required"`
}

// AddNote handles POST /orders/{orderId}/notes.
func (h *OrderHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "orderId"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var req addNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondValidationErrors(w, err)
		return
	}

	o, err := h.svc.AddNote(r.Context(), id, req.NoteText)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("Failed to add note")
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

type sendConfirmationRequest struct {
	Email        string `json:"email" validate:"required,email"`
	OrderDetails struct {
		OrderRef string `json:"orderId" validate:"required"`
	} `json:"orderDetails" validate:"required"`
}

// SendConfirmation handles POST /orders/send-confirmation.
func (h *OrderHandler) SendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req sendConfirmationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondValidationErrors(w, err)
		return
	}

	if err := h.svc.SendConfirmation(r.Context(), req.OrderDetails.OrderRef, req.Email); err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		log.Error().Err(err).Str("order_ref", req.OrderDetails.OrderRef).Msg("Failed to send confirmation email")
		respondWithError(w, http.StatusInternalServerError, "Failed to send confirmation email")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Confirmation email sent"})
}

// trimServicePrefix strips the internal layer prefix from an error
// destined for a client response.
func trimServicePrefix(err error) string {
	msg := err.Error()
	const prefix = "service: "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
