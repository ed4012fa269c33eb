package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyConfirmation(t *testing.T) {
	tests := []struct {
		name      string
		status    PaymentStatus
		storedID  string
		paymentID string
		expected  confirmOutcome
	}{
		{"pending_proceeds", PaymentPending, "", "pay_1", confirmProceed},
		{"replay_same_payment_id", PaymentPaid, "pay_1", "pay_1", confirmReplay},
		{"replay_without_ids", PaymentPaid, "", "", confirmReplay},
		{"reconcile_replay_on_paid_order", PaymentPaid, "pay_1", "", confirmReplay},
		{"adopts_unrecorded_payment_id", PaymentPaid, "", "pay_1", confirmAdopt},
		{"conflicting_payment_ids", PaymentPaid, "pay_1", "pay_2", confirmConflict},
		{"failed_is_terminal", PaymentFailed, "", "pay_1", confirmNotPending},
		{"failed_ignores_matching_id", PaymentFailed, "pay_1", "pay_1", confirmNotPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{PaymentStatus: tt.status, GatewayPaymentID: tt.storedID}
			assert.Equal(t, tt.expected, classifyConfirmation(o, tt.paymentID))
		})
	}
}

// Only a pending order may reach the flip-and-decrement transaction, so
// a retried confirmation can never decrement stock a second time.
func TestClassifyConfirmation_OnlyPendingProceeds(t *testing.T) {
	for _, status := range []PaymentStatus{PaymentPaid, PaymentFailed} {
		for _, paymentID := range []string{"", "pay_1", "pay_2"} {
			o := &Order{PaymentStatus: status, GatewayPaymentID: "pay_1"}
			assert.NotEqual(t, confirmProceed, classifyConfirmation(o, paymentID),
				"status %s with payment id %q must not proceed", status, paymentID)
		}
	}
}
