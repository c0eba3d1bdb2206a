package adapters

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/invest-portal/portal_service/internal/domain/entities"
	"github.com/invest-portal/portal_service/internal/infrastructure/config"
	"github.com/invest-portal/portal_service/pkg/logger"
)

// EmailNotifier mails the operations inbox when a withdrawal needs attention:
// a new submission awaiting review, or a terminal transition. Intermediate
// transitions are not mailed.
type EmailNotifier struct {
	client *sendgrid.Client
	cfg    config.EmailConfig
	logger *logger.Logger
}

// NewEmailNotifier creates an email notifier
func NewEmailNotifier(cfg config.EmailConfig, log *logger.Logger) (*EmailNotifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if cfg.OpsEmail == "" {
		return nil, fmt.Errorf("operations email address is required")
	}
	return &EmailNotifier{
		client: sendgrid.NewSendClient(cfg.APIKey),
		cfg:    cfg,
		logger: log,
	}, nil
}

// PublishWithdrawalEvent sends an operations email for noteworthy transitions
func (n *EmailNotifier) PublishWithdrawalEvent(ctx context.Context, event entities.WithdrawalEvent) error {
	var subject string
	switch {
	case event.Status == entities.WithdrawalStatusPending:
		subject = fmt.Sprintf("New withdrawal request %s awaiting review", event.WithdrawalID)
	case event.Status == entities.WithdrawalStatusCredited:
		subject = fmt.Sprintf("Withdrawal %s credited", event.WithdrawalID)
	case event.Status.IsRejectionFamily():
		subject = fmt.Sprintf("Withdrawal %s %s", event.WithdrawalID, event.Status)
	default:
		return nil
	}

	body := fmt.Sprintf(
		"Withdrawal: %s\nInvestor: %s\nStatus: %s\nProgress: %d%%\nAt: %s\n",
		event.WithdrawalID, event.InvestorID, event.Status, event.Progress,
		event.OccurredAt.Format("2006-01-02 15:04:05 MST"))

	from := mail.NewEmail(n.cfg.FromName, n.cfg.FromEmail)
	to := mail.NewEmail("Operations", n.cfg.OpsEmail)
	message := mail.NewSingleEmail(from, subject, to, body, "")

	resp, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("email provider returned status %d", resp.StatusCode)
	}
	return nil
}

// FanoutNotifier delivers each event to every underlying notifier. A failure
// in one sink does not stop the others; the first error is returned.
type FanoutNotifier struct {
	notifiers []WithdrawalNotifier
}

// WithdrawalNotifier matches the lifecycle service's notifier contract
type WithdrawalNotifier interface {
	PublishWithdrawalEvent(ctx context.Context, event entities.WithdrawalEvent) error
}

// NewFanoutNotifier creates a notifier that fans out to all given sinks
func NewFanoutNotifier(notifiers ...WithdrawalNotifier) *FanoutNotifier {
	return &FanoutNotifier{notifiers: notifiers}
}

// PublishWithdrawalEvent publishes to every sink
func (f *FanoutNotifier) PublishWithdrawalEvent(ctx context.Context, event entities.WithdrawalEvent) error {
	var firstErr error
	for _, n := range f.notifiers {
		if err := n.PublishWithdrawalEvent(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
