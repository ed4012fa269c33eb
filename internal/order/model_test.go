package order_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marketmitra/stockly/internal/order"
)

func TestDeliveryStatusForAge(t *testing.T) {
	tests := []struct {
		name     string
		age      time.Duration
		expected order.DeliveryStatus
	}{
		{"just_created", 0, order.DeliveryProcessing},
		{"under_24h", 23*time.Hour + 59*time.Minute, order.DeliveryProcessing},
		{"exactly_24h", 24 * time.Hour, order.DeliveryShipped},
		{"under_48h", 47 * time.Hour, order.DeliveryShipped},
		{"exactly_48h", 48 * time.Hour, order.DeliveryOutForDelivery},
		{"under_72h", 71 * time.Hour, order.DeliveryOutForDelivery},
		{"exactly_72h", 72 * time.Hour, order.DeliveryDelivered},
		{"one_week", 7 * 24 * time.Hour, order.DeliveryDelivered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, order.DeliveryStatusForAge(tt.age))
		})
	}
}

func TestDeliveryStatusForAge_Monotonic(t *testing.T) {
	prev := order.DeliveryStatusForAge(0)
	for age := time.Hour; age <= 100*time.Hour; age += time.Hour {
		current := order.DeliveryStatusForAge(age)
		assert.GreaterOrEqual(t, current.Rank(), prev.Rank(),
			"status regressed at age %s", age)
		prev = current
	}
	assert.Equal(t, order.DeliveryDelivered, prev)
}

func TestDeliveryStatusRank(t *testing.T) {
	assert.Less(t, order.DeliveryProcessing.Rank(), order.DeliveryShipped.Rank())
	assert.Less(t, order.DeliveryShipped.Rank(), order.DeliveryOutForDelivery.Rank())
	assert.Less(t, order.DeliveryOutForDelivery.Rank(), order.DeliveryDelivered.Rank())
	assert.Equal(t, -1, order.DeliveryStatus("bogus").Rank())
}

func TestNewOrderRef(t *testing.T) {
	format := regexp.MustCompile(`^ORD-\d{6}-\d{4}$`)

	now := time.Now()
	for i := 0; i < 50; i++ {
		ref := order.NewOrderRef(now)
		assert.Regexp(t, format, ref)
	}
}

func TestPaymentAnchor(t *testing.T) {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	verified := created.Add(45 * time.Minute)

	o := &order.Order{CreatedAt: created}
	assert.Equal(t, created, o.PaymentAnchor())

	o.PaymentVerifiedAt = &verified
	assert.Equal(t, verified, o.PaymentAnchor())
}
