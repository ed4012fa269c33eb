package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketmitra/stockly/internal/handler"
	"github.com/marketmitra/stockly/internal/order"
	"github.com/marketmitra/stockly/internal/payment"
	"github.com/marketmitra/stockly/internal/product"
)

type mockOrderService struct {
	createOrderFunc       func(ctx context.Context, input order.CreateOrderInput) (*order.CreateOrderResult, error)
	verifyPaymentFunc     func(ctx context.Context, input order.VerifyPaymentInput) (*order.Order, error)
	retryPaymentFunc      func(ctx context.Context, id uuid.UUID) (*order.CreateOrderResult, error)
	getOrderByIDFunc      func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	getOrderByRefFunc     func(ctx context.Context, ref string) (*order.Order, error)
	listUserOrdersFunc    func(ctx context.Context, userID uuid.UUID) ([]order.Order, error)
	listOrdersFunc        func(ctx context.Context, filter order.ListFilter) ([]order.Order, error)
	setDeliveryStatusFunc func(ctx context.Context, id uuid.UUID, status order.DeliveryStatus) (*order.Order, error)
	addNoteFunc           func(ctx context.Context, id uuid.UUID, text string) (*order.Order, error)
	deleteOrderFunc       func(ctx context.Context, id uuid.UUID) error
	sendConfirmationFunc  func(ctx context.Context, ref, email string) error
}

func (m *mockOrderService) CreateOrder(ctx context.Context, input order.CreateOrderInput) (*order.CreateOrderResult, error) {
	return m.createOrderFunc(ctx, input)
}

func (m *mockOrderService) VerifyPayment(ctx context.Context, input order.VerifyPaymentInput) (*order.Order, error) {
	return m.verifyPaymentFunc(ctx, input)
}

func (m *mockOrderService) RetryPayment(ctx context.Context, id uuid.UUID) (*order.CreateOrderResult, error) {
	return m.retryPaymentFunc(ctx, id)
}

func (m *mockOrderService) GetOrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getOrderByIDFunc(ctx, id)
}

func (m *mockOrderService) GetOrderByRef(ctx context.Context, ref string) (*order.Order, error) {
	return m.getOrderByRefFunc(ctx, ref)
}

func (m *mockOrderService) ListUserOrders(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	return m.listUserOrdersFunc(ctx, userID)
}

func (m *mockOrderService) ListOrders(ctx context.Context, filter order.ListFilter) ([]order.Order, error) {
	return m.listOrdersFunc(ctx, filter)
}

func (m *mockOrderService) SetDeliveryStatus(ctx context.Context, id uuid.UUID, status order.DeliveryStatus) (*order.Order, error) {
	return m.setDeliveryStatusFunc(ctx, id, status)
}

func (m *mockOrderService) AddNote(ctx context.Context, id uuid.UUID, text string) (*order.Order, error) {
	return m.addNoteFunc(ctx, id, text)
}

func (m *mockOrderService) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	return m.deleteOrderFunc(ctx, id)
}

func (m *mockOrderService) SendConfirmation(ctx context.Context, ref, email string) error {
	return m.sendConfirmationFunc(ctx, ref, email)
}

func (m *mockOrderService) ReconcilePendingOrders(ctx context.Context, now time.Time) error {
	return nil
}

func (m *mockOrderService) AdvanceDeliveryStatuses(ctx context.Context, now time.Time) error {
	return nil
}

func (m *mockOrderService) PurgeFailedOrders(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func newOrderRouter(svc order.Service) http.Handler {
	h := handler.NewOrderHandler(svc)
	r := chi.NewRouter()
	r.Post("/orders/create", h.CreateOrder)
	r.Post("/orders/verify", h.VerifyPayment)
	r.Get("/orders", h.ListOrders)
	r.Post("/orders/{id}/retry", h.RetryPayment)
	r.Get("/orders/{id}", h.GetOrder)
	r.Patch("/orders/{id}/status", h.UpdateDeliveryStatus)
	r.Post("/orders/{orderId}/notes", h.AddNote)
	return r
}

func validCreatePayload(userID, productID uuid.UUID) map[string]any {
	return map[string]any{
		"user": userID.String(),
		"products": []map[string]any{
			{"product": productID.String(), "quantity": 2},
		},
		"totalAmount": 200,
		"shippingAddress": map[string]any{
			"street":     "14 MG Road",
			"city":       "Pune",
			"state":      "Maharashtra",
			"postalCode": "411001",
		},
	}
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestOrderHandler_CreateOrder(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	productID := uuid.Must(uuid.NewV4())

	t.Run("malformed_body", func(t *testing.T) {
		router := newOrderRouter(&mockOrderService{})

		req := httptest.NewRequest(http.MethodPost, "/orders/create", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing_postal_code", func(t *testing.T) {
		router := newOrderRouter(&mockOrderService{})

		payload := validCreatePayload(userID, productID)
		payload["shippingAddress"].(map[string]any)["postalCode"] = ""

		rec := doJSON(t, router, http.MethodPost, "/orders/create", payload)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp handler.ValidationErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Validation failed", resp.Error)
		assert.Contains(t, resp.Details, "PostalCode")
	})

	t.Run("understocked_product", func(t *testing.T) {
		svc := &mockOrderService{
			createOrderFunc: func(ctx context.Context, input order.CreateOrderInput) (*order.CreateOrderResult, error) {
				return nil, fmt.Errorf("service: only 5 units available for Organic Fertilizer: %w",
					product.ErrInsufficientStock)
			},
		}
		router := newOrderRouter(svc)

		rec := doJSON(t, router, http.MethodPost, "/orders/create", validCreatePayload(userID, productID))

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "only 5 units available for Organic Fertilizer: insufficient stock", resp["error"])
	})

	t.Run("success", func(t *testing.T) {
		orderID := uuid.Must(uuid.NewV4())
		var gotInput order.CreateOrderInput
		svc := &mockOrderService{
			createOrderFunc: func(ctx context.Context, input order.CreateOrderInput) (*order.CreateOrderResult, error) {
				gotInput = input
				return &order.CreateOrderResult{
					GatewayOrder: &payment.GatewayOrder{ID: "order_rzp123", Amount: 20000, Currency: "INR"},
					Order: &order.Order{
						ID:          orderID,
						OrderRef:    "ORD-123456-7890",
						TotalAmount: 200,
						Items: []order.OrderItem{
							{ProductID: productID, Quantity: 2, Price: 100},
						},
					},
				}, nil
			},
		}
		router := newOrderRouter(svc)

		rec := doJSON(t, router, http.MethodPost, "/orders/create", validCreatePayload(userID, productID))

		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, userID, gotInput.UserID)
		assert.Equal(t, "India", gotInput.ShippingAddress.Country, "country defaults when omitted")

		var resp struct {
			Success       bool `json:"success"`
			RazorpayOrder struct {
				ID       string `json:"id"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
			} `json:"razorpayOrder"`
			Order struct {
				ID       string `json:"_id"`
				OrderRef string `json:"orderId"`
			} `json:"order"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "order_rzp123", resp.RazorpayOrder.ID)
		assert.Equal(t, int64(20000), resp.RazorpayOrder.Amount)
		assert.Equal(t, orderID.String(), resp.Order.ID)
		assert.Equal(t, "ORD-123456-7890", resp.Order.OrderRef)
	})
}

func TestOrderHandler_VerifyPayment(t *testing.T) {
	t.Run("signature_mismatch", func(t *testing.T) {
		svc := &mockOrderService{
			verifyPaymentFunc: func(ctx context.Context, input order.VerifyPaymentInput) (*order.Order, error) {
				return nil, order.ErrSignatureMismatch
			},
		}
		router := newOrderRouter(svc)

		rec := doJSON(t, router, http.MethodPost, "/orders/verify", map[string]string{
			"razorpay_order_id":   "order_rzp123",
			"razorpay_payment_id": "pay_1",
			"razorpay_signature":  "tampered",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, false, resp["success"])
		assert.Equal(t, "Payment verification failed", resp["error"])
	})

	t.Run("success", func(t *testing.T) {
		delivery := time.Date(2025, 6, 6, 12, 0, 0, 0, time.UTC)
		svc := &mockOrderService{
			verifyPaymentFunc: func(ctx context.Context, input order.VerifyPaymentInput) (*order.Order, error) {
				return &order.Order{
					ID:                uuid.Must(uuid.NewV4()),
					PaymentStatus:     order.PaymentPaid,
					EstimatedDelivery: delivery,
				}, nil
			},
		}
		router := newOrderRouter(svc)

		rec := doJSON(t, router, http.MethodPost, "/orders/verify", map[string]string{
			"razorpay_order_id":   "order_rzp123",
			"razorpay_payment_id": "pay_1",
			"razorpay_signature":  "good",
		})

		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Success      bool      `json:"success"`
			DeliveryDate time.Time `json:"deliveryDate"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, delivery, resp.DeliveryDate)
	})
}

func TestOrderHandler_RetryPayment(t *testing.T) {
	t.Run("order_not_found", func(t *testing.T) {
		svc := &mockOrderService{
			retryPaymentFunc: func(ctx context.Context, id uuid.UUID) (*order.CreateOrderResult, error) {
				return nil, order.ErrOrderNotFound
			},
		}
		router := newOrderRouter(svc)

		rec := doJSON(t, router, http.MethodPost, "/orders/"+uuid.Must(uuid.NewV4()).String()+"/retry", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ORDER_NOT_FOUND", resp["code"])
	})

	t.Run("gateway_failure", func(t *testing.T) {
		svc := &mockOrderService{
			retryPaymentFunc: func(ctx context.Context, id uuid.UUID) (*order.CreateOrderResult, error) {
				return nil, fmt.Errorf("service: failed to open gateway order for retry: timeout")
			},
		}
		router := newOrderRouter(svc)

		rec := doJSON(t, router, http.MethodPost, "/orders/"+uuid.Must(uuid.NewV4()).String()+"/retry", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "RETRY_FAILED", resp["code"])
	})
}

func TestOrderHandler_UpdateDeliveryStatus(t *testing.T) {
	t.Run("invalid_status", func(t *testing.T) {
		svc := &mockOrderService{
			setDeliveryStatusFunc: func(ctx context.Context, id uuid.UUID, status order.DeliveryStatus) (*order.Order, error) {
				return nil, fmt.Errorf("%w: %q", order.ErrInvalidDeliveryStatus, status)
			},
		}
		router := newOrderRouter(svc)

		rec := doJSON(t, router, http.MethodPatch,
			"/orders/"+uuid.Must(uuid.NewV4()).String()+"/status",
			map[string]string{"status": "teleported"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("success", func(t *testing.T) {
		shipped := order.DeliveryShipped
		svc := &mockOrderService{
			setDeliveryStatusFunc: func(ctx context.Context, id uuid.UUID, status order.DeliveryStatus) (*order.Order, error) {
				return &order.Order{ID: id, PaymentStatus: order.PaymentPaid, DeliveryStatus: &shipped}, nil
			},
		}
		router := newOrderRouter(svc)

		rec := doJSON(t, router, http.MethodPatch,
			"/orders/"+uuid.Must(uuid.NewV4()).String()+"/status",
			map[string]string{"status": "shipped"})

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestOrderHandler_ListOrders_Filters(t *testing.T) {
	newCapture := func() (*mockOrderService, *order.ListFilter) {
		var gotFilter order.ListFilter
		svc := &mockOrderService{
			listOrdersFunc: func(ctx context.Context, filter order.ListFilter) ([]order.Order, error) {
				gotFilter = filter
				return []order.Order{}, nil
			},
		}
		return svc, &gotFilter
	}

	t.Run("start_date_only", func(t *testing.T) {
		svc, gotFilter := newCapture()
		router := newOrderRouter(svc)

		rec := doJSON(t, router, http.MethodGet, "/orders?startDate=2025-06-01T00:00:00Z", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), gotFilter.From)
		assert.True(t, gotFilter.To.IsZero(), "absent endDate must leave the upper bound open")
	})

	t.Run("end_date_only", func(t *testing.T) {
		svc, gotFilter := newCapture()
		router := newOrderRouter(svc)

		rec := doJSON(t, router, http.MethodGet, "/orders?endDate=2025-06-30T00:00:00Z", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, gotFilter.From.IsZero(), "absent startDate must leave the lower bound open")
		assert.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), gotFilter.To)
	})

	t.Run("status_filter", func(t *testing.T) {
		svc, gotFilter := newCapture()
		router := newOrderRouter(svc)

		rec := doJSON(t, router, http.MethodGet, "/orders?status=paid", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, order.PaymentPaid, gotFilter.PaymentStatus)
	})

	t.Run("invalid_start_date", func(t *testing.T) {
		svc, _ := newCapture()
		router := newOrderRouter(svc)

		rec := doJSON(t, router, http.MethodGet, "/orders?startDate=yesterday", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestOrderHandler_GetOrder(t *testing.T) {
	t.Run("bad_uuid", func(t *testing.T) {
		router := newOrderRouter(&mockOrderService{})

		rec := doJSON(t, router, http.MethodGet, "/orders/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not_found", func(t *testing.T) {
		svc := &mockOrderService{
			getOrderByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return nil, order.ErrOrderNotFound
			},
		}
		router := newOrderRouter(svc)

		rec := doJSON(t, router, http.MethodGet, "/orders/"+uuid.Must(uuid.NewV4()).String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestOrderHandler_AddNote(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	svc := &mockOrderService{
		addNoteFunc: func(ctx context.Context, id uuid.UUID, text string) (*order.Order, error) {
			return &order.Order{
				ID:    id,
				Notes: []order.OrderNote{{Text: text, CreatedAt: time.Now()}},
			}, nil
		},
	}
	router := newOrderRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/orders/"+orderID.String()+"/notes",
		map[string]string{"noteText": "Customer asked to leave at the gate"})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Notes []struct {
			Text string `json:"text"`
		} `json:"notes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Notes, 1)
	assert.Equal(t, "Customer asked to leave at the gate", resp.Notes[0].Text)
}
