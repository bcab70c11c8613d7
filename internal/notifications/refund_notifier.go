package notifications

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/language"

	domain "github.com/glowmart/api/internal/domain"
	"github.com/glowmart/api/internal/platform/jobs"
)

// OrderEventPublisher fans order lifecycle events out to interested consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message jobs.OrderEventMessage) (string, error)
}

type refundMessage struct {
	subject string
	body    *template.Template
}

type refundEmailData struct {
	DisplayName  string
	OrderID      string
	RefundAmount int64
	CanceledAt   string
}

var refundMessages = map[string]refundMessage{
	"en": {
		subject: "Your order has been canceled",
		body: template.Must(template.New("refund_en").Parse(`<html><body>
<p>Hi {{if .DisplayName}}{{.DisplayName}}{{else}}there{{end}},</p>
<p>Your order <strong>{{.OrderID}}</strong> was canceled on {{.CanceledAt}}.</p>
<p>A refund of <strong>{{.RefundAmount}}</strong> has been credited back to your account balance.</p>
<p>GlowMart</p>
</body></html>`)),
	},
	"vi": {
		subject: "Đơn hàng của bạn đã bị hủy",
		body: template.Must(template.New("refund_vi").Parse(`<html><body>
<p>Xin chào {{if .DisplayName}}{{.DisplayName}}{{else}}quý khách{{end}},</p>
<p>Đơn hàng <strong>{{.OrderID}}</strong> đã bị hủy vào {{.CanceledAt}}.</p>
<p>Số tiền hoàn lại <strong>{{.RefundAmount}}</strong> đã được cộng vào số dư tài khoản của bạn.</p>
<p>GlowMart</p>
</body></html>`)),
	},
}

var refundLocaleMatcher = language.NewMatcher([]language.Tag{
	language.English,
	language.Vietnamese,
})

// RefundEmailNotifierDeps bundles the collaborators for the refund notifier.
type RefundEmailNotifierDeps struct {
	Mailer Mailer
	// Events is optional; when set, cancellations are also published as
	// order events for downstream consumers.
	Events OrderEventPublisher
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// RefundEmailNotifier emails customers about cancellation refunds in their
// preferred language and mirrors the event onto the order event stream.
type RefundEmailNotifier struct {
	mailer Mailer
	events OrderEventPublisher
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewRefundEmailNotifier constructs a RefundEmailNotifier.
func NewRefundEmailNotifier(deps RefundEmailNotifierDeps) (*RefundEmailNotifier, error) {
	if deps.Mailer == nil {
		return nil, errors.New("refund notifier: mailer is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &RefundEmailNotifier{
		mailer: deps.Mailer,
		events: deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// OrderCanceled sends the refund email and publishes the cancellation event.
func (n *RefundEmailNotifier) OrderCanceled(ctx context.Context, account domain.Account, order domain.Order, refund int64) error {
	if n == nil {
		return errors.New("refund notifier: not initialised")
	}
	if strings.TrimSpace(account.Email) == "" {
		return fmt.Errorf("refund notifier: account %s has no email", account.ID)
	}

	canceledAt := n.clock()
	if order.CanceledAt != nil {
		canceledAt = order.CanceledAt.UTC()
	}

	msg := resolveRefundMessage(account.Locale)
	var body strings.Builder
	err := msg.body.Execute(&body, refundEmailData{
		DisplayName:  account.DisplayName,
		OrderID:      order.ID,
		RefundAmount: refund,
		CanceledAt:   canceledAt.Format("2006-01-02 15:04 MST"),
	})
	if err != nil {
		return fmt.Errorf("refund notifier: render email: %w", err)
	}

	if err := n.mailer.Send(ctx, account.Email, msg.subject, body.String()); err != nil {
		return err
	}

	n.publishCanceled(ctx, order, refund, canceledAt)
	return nil
}

// publishCanceled is best effort; a failed publish never fails the notification.
func (n *RefundEmailNotifier) publishCanceled(ctx context.Context, order domain.Order, refund int64, occurredAt time.Time) {
	if n.events == nil {
		return
	}
	_, err := n.events.PublishOrderEvent(ctx, jobs.OrderEventMessage{
		Event:        "order.canceled",
		OrderID:      order.ID,
		AccountRef:   order.AccountRef,
		TotalAmount:  order.TotalAmount,
		RefundAmount: refund,
		OccurredAt:   occurredAt,
	})
	if err != nil {
		n.logger(ctx, "notifications.event.publish_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

// resolveRefundMessage picks the closest supported language for the locale.
func resolveRefundMessage(locale string) refundMessage {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return refundMessages["en"]
	}
	_, index, _ := refundLocaleMatcher.Match(tag)
	if index == 1 {
		return refundMessages["vi"]
	}
	return refundMessages["en"]
}
