package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fleetdash/fleetdash/internal/jobs"
	"github.com/fleetdash/fleetdash/internal/pricing"
	"github.com/fleetdash/fleetdash/internal/quotes"
	"github.com/fleetdash/fleetdash/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Message is a plain-text mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// MailSender delivers a Message.
type MailSender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender relays mail through an unauthenticated SMTP server such as Mailpit.
type SMTPSender struct {
	Host string
	Port int
	From string
}

// Send implements MailSender.
func (s SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	return smtp.SendMail(addr, nil, s.From, []string{msg.To}, []byte(b.String()))
}

// QuoteLoader is the slice of the quote repository the mail job reads.
type QuoteLoader interface {
	Get(ctx context.Context, id int64) (quotes.Quote, error)
}

// QuoteSendJob renders and mails a quote summary.
type QuoteSendJob struct {
	Quotes  QuoteLoader
	Sender  MailSender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewQuoteSendJob wires dependencies for the quote mail handler.
func NewQuoteSendJob(repo QuoteLoader, sender MailSender, logger *slog.Logger, metrics *jobmetrics.Metrics) *QuoteSendJob {
	return &QuoteSendJob{Quotes: repo, Sender: sender, Logger: logger, Metrics: metrics}
}

// Handle processes TaskQuoteSend tasks.
func (j *QuoteSendJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Quotes == nil || j.Sender == nil {
		return errors.New("quote send: handler not configured")
	}
	var payload QuoteSendPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("quote send: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskQuoteSend)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger().With(slog.Int64("quote_id", payload.QuoteID))

	q, err := j.Quotes.Get(ctx, payload.QuoteID)
	if errors.Is(err, shared.ErrNotFound) {
		logger.Warn("quote vanished before mail was sent")
		j.metrics().RecordMail("skipped")
		return fmt.Errorf("quote send: %v: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	recipient := payload.Recipient
	if recipient == "" {
		recipient = q.CustomerDetails.Email
	}
	msg := Message{
		To:      recipient,
		Subject: fmt.Sprintf("Your quote #%d", q.ID),
		Body:    RenderQuoteSummary(q),
	}
	if err := j.Sender.Send(ctx, msg); err != nil {
		j.metrics().RecordMail("failed")
		logger.Error("send quote mail", slog.Any("error", err))
		return err
	}
	j.metrics().RecordMail("sent")
	logger.Info("quote mail sent", slog.String("recipient", recipient))
	return nil
}

// RenderQuoteSummary formats the quote as the plain-text mail body.
func RenderQuoteSummary(q quotes.Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", q.CustomerDetails.RecipientName)
	fmt.Fprintf(&b, "Please find the quote for %s below.\n\n", q.CustomerDetails.CompanyName)
	for _, p := range q.Parts {
		name := strings.TrimSpace(strings.Join([]string{p.Product.Make, p.Product.Model, p.Product.Variant}, " "))
		if name == "" {
			name = p.Product.ID
		}
		fmt.Fprintf(&b, "%d x %s @ %s (%s%% off %s)\n", p.Quantity, name, p.Price.StringFixed(2), p.MasterDiscount.String(), p.MasterPrice.StringFixed(2))
		for _, acc := range p.Accessories {
			accName := strings.TrimSpace(acc.Product.Make + " " + acc.Product.Model)
			if accName == "" {
				accName = acc.Product.ID
			}
			fmt.Fprintf(&b, "    + %d x %s @ %s\n", acc.Quantity, accName, acc.Price.StringFixed(2))
		}
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", pricing.QuoteTotal(q.Parts).StringFixed(2))
	return b.String()
}

func (j *QuoteSendJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskQuoteSend))
	}
	return slog.Default().With(slog.String("job", TaskQuoteSend))
}

func (j *QuoteSendJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
