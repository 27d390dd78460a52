package delivery

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const callbackAuthToken = "twilio-auth-token"

// twilioSign reproduces Twilio's request signature: the full URL followed by
// the POST parameters sorted by key, HMAC-SHA1 over the auth token.
func twilioSign(fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(fullURL)
	for _, key := range keys {
		builder.WriteString(key)
		builder.WriteString(params.Get(key))
	}

	mac := hmac.New(sha1.New, []byte(callbackAuthToken))
	mac.Write([]byte(builder.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postCallback(t *testing.T, handler *CallbackHandler, target string, form url.Values, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "alerts.example.com")

	if sign {
		fullURL := "https://alerts.example.com" + target
		req.Header.Set("X-Twilio-Signature", twilioSign(fullURL, form))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func deliveredForm() url.Values {
	return url.Values{
		"MessageSid":    {"SM123"},
		"MessageStatus": {"delivered"},
	}
}

func TestCallbackDeliveredUpgradesStatus(t *testing.T) {
	ldg := &fakeLedger{}
	handler := NewCallbackHandler(ldg, callbackAuthToken, zerolog.Nop())

	rec := postCallback(t, handler, "/webhooks/sms?alertId=42", deliveredForm(), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(ldg.updated) != 1 || ldg.updated[0] != 42 {
		t.Fatalf("updated = %v", ldg.updated)
	}
}

func TestCallbackRejectsMissingSignature(t *testing.T) {
	ldg := &fakeLedger{}
	handler := NewCallbackHandler(ldg, callbackAuthToken, zerolog.Nop())

	rec := postCallback(t, handler, "/webhooks/sms?alertId=42", deliveredForm(), false)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if len(ldg.updated) != 0 {
		t.Fatal("unsigned callback must not settle anything")
	}
}

func TestCallbackRejectsBadSignature(t *testing.T) {
	ldg := &fakeLedger{}
	handler := NewCallbackHandler(ldg, callbackAuthToken, zerolog.Nop())

	form := deliveredForm()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/sms?alertId=42", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "alerts.example.com")
	req.Header.Set("X-Twilio-Signature", "invalid")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCallbackIgnoresTransientStatuses(t *testing.T) {
	ldg := &fakeLedger{}
	handler := NewCallbackHandler(ldg, callbackAuthToken, zerolog.Nop())

	form := url.Values{
		"MessageSid":    {"SM123"},
		"MessageStatus": {"queued"},
	}
	rec := postCallback(t, handler, "/webhooks/sms?alertId=42", form, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (acknowledged)", rec.Code)
	}
	if len(ldg.updated) != 0 {
		t.Fatal("transient status must not settle the delivery")
	}
}

func TestCallbackMissingAlertID(t *testing.T) {
	ldg := &fakeLedger{}
	handler := NewCallbackHandler(ldg, callbackAuthToken, zerolog.Nop())

	rec := postCallback(t, handler, "/webhooks/sms", deliveredForm(), true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
