package delivery

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	twilioclient "github.com/twilio/twilio-go/client"

	"coinalerts/internal/notify"
	"coinalerts/internal/storage"
)

// CallbackHandler settles SMS delivery outcomes from Twilio status callbacks.
// The signature is validated against the externally visible URL, reconstructed
// from the forwarding headers set by the reverse proxy.
type CallbackHandler struct {
	ledger    outcomeLedger
	validator twilioclient.RequestValidator
	logger    zerolog.Logger
}

// NewCallbackHandler constructs the Twilio callback handler.
func NewCallbackHandler(ldg outcomeLedger, authToken string, logger zerolog.Logger) *CallbackHandler {
	return &CallbackHandler{
		ledger:    ldg,
		validator: twilioclient.NewRequestValidator(authToken),
		logger:    logger.With().Str("component", "sms_callback").Logger(),
	}
}

// ServeHTTP handles POST callbacks. Only a MessageStatus of "delivered"
// upgrades the PENDING row; transient statuses are acknowledged and ignored.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Warn().Err(err).Msg("unparseable callback body")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !h.validSignature(r) {
		h.logger.Error().Msg("callback signature validation failed")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	alertIDStr := r.URL.Query().Get("alertId")
	alertID, err := strconv.ParseInt(alertIDStr, 10, 64)
	if err != nil {
		h.logger.Warn().Str("alert_id", alertIDStr).Msg("callback missing alert id")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	messageSID := r.PostFormValue("MessageSid")
	messageStatus := r.PostFormValue("MessageStatus")
	if messageSID == "" || messageStatus == "" {
		h.logger.Warn().Int64("alert_id", alertID).Msg("callback missing message sid or status")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if messageStatus != "delivered" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.ledger.UpdateStatus(r.Context(), alertID, notify.ChannelSMS, storage.StatusDelivered); err != nil {
		h.logger.Error().Err(err).Int64("alert_id", alertID).Str("message_sid", messageSID).
			Msg("failed to settle delivery status")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// validSignature checks X-Twilio-Signature against the URL Twilio actually
// signed. Behind a proxy the scheme and host come from the forwarding headers.
func (h *CallbackHandler) validSignature(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}

	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}

	url := scheme + "://" + host + r.URL.Path
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	// Twilio signs only its own POST parameters, never our query string.
	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	return h.validator.Validate(url, params, signature)
}
