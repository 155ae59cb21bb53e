package alerting

import (
	"context"
	"log"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
)

// DefaultSendTimeout bounds one delivery attempt.
const DefaultSendTimeout = 5 * time.Second

// SendFunc delivers one notification on one channel. Implementations are
// external adapters (SMTP, chat webhook, pager API); errors are logged,
// never propagated into the routing path.
type SendFunc func(ctx context.Context, n domain.AlertNotification) error

func deliver(send SendFunc, n domain.AlertNotification, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := send(ctx, n); err != nil {
		log.Printf("[alerting] %s delivery to %s failed: %v", n.Channel, n.Recipient, err)
	}
}
