package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/congo-pay/walletcore/internal/metrics"
)

const (
	KindOTP              = "otp"
	KindTransferSent     = "transfer_sent"
	KindTransferReceived = "transfer_received"
	KindDeposit          = "deposit"
	KindWithdrawal       = "withdrawal"
	KindRefund           = "refund"
	KindInvestment       = "investment"
)

// Message describes a notification payload. Destination is the recipient's user id.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination)
	return nil
}

// Dispatcher sends messages in the background. A failed delivery is logged and
// counted; it never reaches the caller.
type Dispatcher struct {
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewDispatcher wraps notifier for fire-and-forget delivery.
func NewDispatcher(notifier Notifier, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{notifier: notifier, logger: logger, metrics: m, timeout: 5 * time.Second}
}

// Dispatch queues message for delivery and returns immediately.
func (d *Dispatcher) Dispatch(message Message) {
	if d == nil || d.notifier == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.notifier.Send(ctx, message); err != nil {
			d.metrics.NotificationFailed()
			d.logger.Warn("notification delivery failed",
				slog.String("kind", message.Kind),
				slog.String("destination", message.Destination),
				slog.Any("error", err))
		}
	}()
}

// Wait blocks until every dispatched message has been attempted.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
