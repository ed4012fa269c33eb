package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/marketmitra/stockly/internal/config"
	"github.com/marketmitra/stockly/internal/order"
)

// SMTPNotifier sends plain-text order confirmations. It satisfies
// order.ConfirmationSender.
type SMTPNotifier struct {
	host string
	port string
	from string
}

func NewSMTPNotifier(cfg config.SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{host: cfg.Host, port: cfg.Port, from: cfg.From}
}

func (n *SMTPNotifier) SendOrderConfirmation(ctx context.Context, email string, o *order.Order) error {
	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\nTo: %s\r\nSubject: Order confirmation %s\r\n\r\n", n.from, email, o.OrderRef)
	fmt.Fprintf(&body, "Thank you for your order %s.\r\n\r\n", o.OrderRef)
	for _, item := range o.Items {
		fmt.Fprintf(&body, "  %d x %s @ %.2f\r\n", item.Quantity, item.ProductID, item.Price)
	}
	fmt.Fprintf(&body, "\r\nTotal: %.2f\r\nEstimated delivery: %s\r\n",
		o.TotalAmount, o.EstimatedDelivery.Format("2 Jan 2006"))

	addr := n.host + ":" + n.port
	if err := smtp.SendMail(addr, nil, n.from, []string{email}, []byte(body.String())); err != nil {
		return fmt.Errorf("notify: failed to send confirmation for order %s: %w", o.OrderRef, err)
	}

	log.Info().Str("order_ref", o.OrderRef).Str("email", email).Msg("notify: confirmation email sent")
	return nil
}

// NoopNotifier logs instead of sending. Used when SMTP is not
// configured.
type NoopNotifier struct{}

func (NoopNotifier) SendOrderConfirmation(ctx context.Context, email string, o *order.Order) error {
	log.Info().Str("order_ref", o.OrderRef).Str("email", email).Msg("notify: email disabled, skipping confirmation")
	return nil
}
