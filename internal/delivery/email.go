package delivery

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
	"golang.org/x/time/rate"

	"coinalerts/internal/config"
	"coinalerts/internal/ledger"
	"coinalerts/internal/notify"
	"coinalerts/internal/queue"
	"coinalerts/internal/storage"
	"coinalerts/internal/templates"
)

// Template code resolved for alert email bodies.
const emailTemplateCode = "price_alert"

// mailSender is the slice of the SMTP client the worker calls.
type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailWorker delivers batches over SMTP. Unlike SMS there is no provider
// callback: a send that the SMTP server accepts is final, so outcomes settle
// immediately as DELIVERED or FAILED.
type EmailWorker struct {
	*Worker
	sender    mailSender
	contacts  contactSource
	templates templateSource
	logs      contentLogger
	ledger    outcomeLedger
	limiter   *rate.Limiter
	from      string
	logger    zerolog.Logger
}

// EmailWorkerOptions collects the email worker dependencies.
type EmailWorkerOptions struct {
	Consumer  queue.Consumer
	Sender    mailSender
	Contacts  contactSource
	Templates templateSource
	Logs      contentLogger
	Ledger    outcomeLedger
	Config    config.EmailConfig
	Logger    zerolog.Logger
}

// NewSMTPClient builds the SMTP client for the configured relay.
func NewSMTPClient(cfg config.EmailConfig) (*mail.Client, error) {
	return mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	)
}

// NewEmailWorker constructs the email channel worker.
func NewEmailWorker(opts EmailWorkerOptions) *EmailWorker {
	limit := rate.Limit(opts.Config.RateLimit)
	if limit <= 0 {
		limit = rate.Limit(5)
	}
	w := &EmailWorker{
		sender:    opts.Sender,
		contacts:  opts.Contacts,
		templates: opts.Templates,
		logs:      opts.Logs,
		ledger:    opts.Ledger,
		limiter:   rate.NewLimiter(limit, 1),
		from:      opts.Config.From,
		logger:    opts.Logger.With().Str("component", "email_worker").Logger(),
	}
	w.Worker = newWorker("email_worker", queue.TopicEmail, opts.Consumer, w.process, opts.Logger)
	return w
}

func (w *EmailWorker) process(ctx context.Context, batch []notify.Notification) {
	contacts, err := w.contacts.GetContacts(ctx, userIDs(batch))
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to resolve email recipients")
		return
	}

	tpl, err := w.templates.Get(ctx, notify.ChannelEmail, emailTemplateCode)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to resolve email template")
		return
	}

	var (
		outcomes []ledger.Outcome
		logs     []storage.ContentLog
		sent     int
	)
	for _, n := range batch {
		contact, ok := contacts[n.UserID]
		if !ok || !contact.Subscribed || contact.Email == "" {
			continue
		}

		subject := templates.Render(tpl.Subject, n, contact.Name)
		body := templates.Render(tpl.Content, n, contact.Name)

		if err := w.limiter.Wait(ctx); err != nil {
			w.logger.Warn().Err(err).Msg("email rate limiter interrupted, abandoning rest of batch")
			break
		}

		sendErr := w.send(ctx, contact.Email, subject, body)
		now := time.Now().UTC()

		status := storage.StatusDelivered
		if sendErr != nil {
			status = storage.StatusFailed
			w.logger.Error().Err(sendErr).Int64("alert_id", n.AlertID).Msg("email send failed")
		} else {
			sent++
		}
		outcomes = append(outcomes, ledger.Outcome{
			AlertID: n.AlertID,
			Channel: notify.ChannelEmail,
			Status:  status,
			SendAt:  now,
		})

		alertID := n.AlertID
		logs = append(logs, storage.ContentLog{
			UserID:  n.UserID,
			AlertID: &alertID,
			Channel: notify.ChannelEmail,
			Content: body,
		})
	}

	if err := w.ledger.Record(ctx, outcomes); err != nil {
		w.logger.Error().Err(err).Int("count", len(outcomes)).Msg("failed to record email outcomes")
	}
	if err := w.logs.InsertContentLogs(ctx, logs); err != nil {
		w.logger.Error().Err(err).Int("count", len(logs)).Msg("failed to persist email content logs")
	}
	w.logger.Info().Int("alerts", len(batch)).Int("sent", sent).Msg("email batch processed")
}

func (w *EmailWorker) send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(w.from); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)
	return w.sender.DialAndSendWithContext(ctx, msg)
}
