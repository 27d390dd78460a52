package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"coinalerts/internal/config"
	"coinalerts/internal/ledger"
	"coinalerts/internal/notify"
	"coinalerts/internal/queue"
	"coinalerts/internal/storage"
	"coinalerts/internal/templates"
)

// Template code resolved for alert SMS bodies.
const smsTemplateCode = "price_alert"

// messageCreator is the slice of the Twilio REST API the worker calls.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// contactSource resolves recipient contact details in one batch.
type contactSource interface {
	GetContacts(ctx context.Context, userIDs []int64) (map[int64]storage.UserContact, error)
}

// templateSource resolves channel templates.
type templateSource interface {
	Get(ctx context.Context, channel notify.Channel, code string) (storage.Template, error)
}

// contentLogger persists rendered content for audit.
type contentLogger interface {
	InsertContentLogs(ctx context.Context, logs []storage.ContentLog) error
}

// SMSWorker delivers batches over Twilio. Sends are rate limited, recorded
// PENDING, and settled later by the provider status callback.
type SMSWorker struct {
	*Worker
	api         messageCreator
	contacts    contactSource
	templates   templateSource
	logs        contentLogger
	ledger      outcomeLedger
	limiter     *rate.Limiter
	fromNumber  string
	region      string
	callbackURL string
	logger      zerolog.Logger
}

// SMSWorkerOptions collects the SMS worker dependencies.
type SMSWorkerOptions struct {
	Consumer  queue.Consumer
	API       messageCreator
	Contacts  contactSource
	Templates templateSource
	Logs      contentLogger
	Ledger    outcomeLedger
	Config    config.SMSConfig
	Logger    zerolog.Logger
}

// NewTwilioAPI builds the Twilio REST client for the given credentials.
func NewTwilioAPI(cfg config.SMSConfig) *openapi.ApiService {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return client.Api
}

// NewSMSWorker constructs the SMS channel worker.
func NewSMSWorker(opts SMSWorkerOptions) *SMSWorker {
	limit := rate.Limit(opts.Config.RateLimit)
	if limit <= 0 {
		limit = rate.Limit(1)
	}
	w := &SMSWorker{
		api:         opts.API,
		contacts:    opts.Contacts,
		templates:   opts.Templates,
		logs:        opts.Logs,
		ledger:      opts.Ledger,
		limiter:     rate.NewLimiter(limit, 1),
		fromNumber:  opts.Config.FromNumber,
		region:      opts.Config.Region,
		callbackURL: opts.Config.CallbackURL,
		logger:      opts.Logger.With().Str("component", "sms_worker").Logger(),
	}
	w.Worker = newWorker("sms_worker", queue.TopicSMS, opts.Consumer, w.process, opts.Logger)
	return w
}

func (w *SMSWorker) process(ctx context.Context, batch []notify.Notification) {
	contacts, err := w.contacts.GetContacts(ctx, userIDs(batch))
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to resolve sms recipients")
		return
	}

	tpl, err := w.templates.Get(ctx, notify.ChannelSMS, smsTemplateCode)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to resolve sms template")
		return
	}

	var (
		outcomes []ledger.Outcome
		logs     []storage.ContentLog
		sent     int
	)
	for _, n := range batch {
		contact, ok := contacts[n.UserID]
		// Unsubscribed users and users without a phone number are silently
		// skipped, not failures.
		if !ok || !contact.Subscribed || contact.PhoneNumber == "" {
			continue
		}

		to := formatPhoneNumber(contact.PhoneNumber, w.region)
		body := templates.Render(tpl.Content, n, contact.Name)

		if err := w.limiter.Wait(ctx); err != nil {
			w.logger.Warn().Err(err).Msg("sms rate limiter interrupted, abandoning rest of batch")
			break
		}

		sid, sendErr := w.send(n, to, body)
		now := time.Now().UTC()

		status := storage.StatusPending
		if sendErr != nil {
			status = storage.StatusFailed
			w.logger.Error().Err(sendErr).Int64("alert_id", n.AlertID).Msg("sms send failed")
		} else {
			sent++
		}
		outcomes = append(outcomes, ledger.Outcome{
			AlertID: n.AlertID,
			Channel: notify.ChannelSMS,
			Status:  status,
			SendAt:  now,
		})

		alertID := n.AlertID
		entry := storage.ContentLog{
			UserID:  n.UserID,
			AlertID: &alertID,
			Channel: notify.ChannelSMS,
			Content: body,
		}
		if sid != "" {
			ref := sid
			entry.ProviderRef = &ref
		}
		logs = append(logs, entry)
	}

	if err := w.ledger.Record(ctx, outcomes); err != nil {
		w.logger.Error().Err(err).Int("count", len(outcomes)).Msg("failed to record sms outcomes")
	}
	if err := w.logs.InsertContentLogs(ctx, logs); err != nil {
		w.logger.Error().Err(err).Int("count", len(logs)).Msg("failed to persist sms content logs")
	}
	w.logger.Info().Int("alerts", len(batch)).Int("sent", sent).Msg("sms batch processed")
}

// send issues one message with the per-alert status callback attached.
func (w *SMSWorker) send(n notify.Notification, to, body string) (string, error) {
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(w.fromNumber)
	params.SetBody(body)
	if w.callbackURL != "" {
		params.SetStatusCallback(fmt.Sprintf("%s?alertId=%d", w.callbackURL, n.AlertID))
	}

	msg, err := w.api.CreateMessage(params)
	if err != nil {
		return "", err
	}
	if msg.Sid != nil {
		return *msg.Sid, nil
	}
	return "", nil
}

func userIDs(batch []notify.Notification) []int64 {
	seen := make(map[int64]struct{}, len(batch))
	ids := make([]int64, 0, len(batch))
	for _, n := range batch {
		if _, ok := seen[n.UserID]; ok {
			continue
		}
		seen[n.UserID] = struct{}{}
		ids = append(ids, n.UserID)
	}
	return ids
}
