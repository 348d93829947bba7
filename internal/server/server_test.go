package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/config"
	"github.com/congo-pay/walletcore/internal/logging"
)

func testConfig() config.Config {
	return config.Config{
		AppName:              "walletcore-test",
		AppEnv:               "test",
		JWTSecret:            "access",
		RefreshSecret:        "refresh",
		AccessTokenTTL:       time.Minute,
		RefreshTokenTTL:      time.Hour,
		IdempotencyTTL:       time.Hour,
		Currency:             "XAF",
		OTPTTL:               time.Minute,
		OTPCodeLength:        6,
		GatewayWebhookSecret: "whsec_test",
		WebhookTolerance:     5 * time.Minute,
		ShutdownPeriod:       time.Second,
	}
}

type client struct {
	t   *testing.T
	srv *Server
}

func (c client) do(method, path, token string, body any) (int, []byte) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.srv.App().Test(req, -1)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func (c client) decode(raw []byte, v any) {
	c.t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		c.t.Fatalf("decode %s: %v", raw, err)
	}
}

func (c client) signup(phone string) string {
	c.t.Helper()
	creds := map[string]string{"phone": phone, "pin": "4321", "device_id": "dev-" + phone}
	if status, body := c.do(http.MethodPost, "/api/v1/identity/register", "", creds); status != http.StatusCreated {
		c.t.Fatalf("register %s: %d %s", phone, status, body)
	}
	status, body := c.do(http.MethodPost, "/api/v1/auth/login", "", creds)
	if status != http.StatusOK {
		c.t.Fatalf("login %s: %d %s", phone, status, body)
	}
	var login struct {
		AccessToken string `json:"access_token"`
	}
	c.decode(body, &login)
	return login.AccessToken
}

func (c client) balance(token string) decimal.Decimal {
	c.t.Helper()
	status, body := c.do(http.MethodGet, "/api/v1/wallet", token, nil)
	if status != http.StatusOK {
		c.t.Fatalf("wallet: %d %s", status, body)
	}
	var w struct {
		Balance decimal.Decimal `json:"balance"`
	}
	c.decode(body, &w)
	return w.Balance
}

func newTestServer(t *testing.T) client {
	t.Helper()
	srv, err := New(context.Background(), testConfig(), nil, nil, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return client{t: t, srv: srv}
}

func TestFundThenTransferEndToEnd(t *testing.T) {
	c := newTestServer(t)
	alice := c.signup("+242060000001")
	bob := c.signup("+242060000002")

	if got := c.balance(alice); !got.IsZero() {
		t.Fatalf("fresh wallet balance = %s", got)
	}

	status, body := c.do(http.MethodPost, "/api/v1/funding/intents", alice, map[string]string{"amount": "10000"})
	if status != http.StatusCreated {
		t.Fatalf("create intent: %d %s", status, body)
	}
	var created struct {
		IntentID string `json:"intent_id"`
	}
	c.decode(body, &created)

	for i := 0; i < 2; i++ {
		if status, body := c.do(http.MethodPost, "/api/v1/funding/intents/"+created.IntentID+"/confirm", alice, nil); status != http.StatusOK {
			t.Fatalf("confirm #%d: %d %s", i, status, body)
		}
	}
	if got := c.balance(alice); !got.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("balance after funding = %s, want 10000", got)
	}

	status, body = c.do(http.MethodGet, "/api/v1/fees/quote?operation=transfer&amount=1000", alice, nil)
	if status != http.StatusOK {
		t.Fatalf("quote: %d %s", status, body)
	}
	var quote struct {
		Total decimal.Decimal `json:"total"`
	}
	c.decode(body, &quote)

	status, body = c.do(http.MethodPost, "/api/v1/otp", alice, map[string]string{"purpose": "transfer"})
	if status != http.StatusCreated {
		t.Fatalf("issue otp: %d %s", status, body)
	}
	var issued struct {
		Code string `json:"code"`
	}
	c.decode(body, &issued)

	transfer := map[string]string{"recipient_phone": "+242060000002", "amount": "1000", "otp_code": issued.Code}
	if status, body := c.do(http.MethodPost, "/api/v1/transfers", alice, transfer); status != http.StatusCreated {
		t.Fatalf("transfer: %d %s", status, body)
	}
	if status, _ := c.do(http.MethodPost, "/api/v1/transfers", alice, transfer); status != http.StatusConflict {
		t.Fatalf("replayed code status = %d, want 409", status)
	}

	if got, want := c.balance(alice), decimal.NewFromInt(10000).Sub(quote.Total); !got.Equal(want) {
		t.Fatalf("sender balance = %s, want %s", got, want)
	}
	if got := c.balance(bob); !got.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("recipient balance = %s, want 1000", got)
	}

	status, body = c.do(http.MethodGet, "/api/v1/transactions", bob, nil)
	if status != http.StatusOK || !strings.Contains(string(body), `"direction":"in"`) {
		t.Fatalf("history: %d %s", status, body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	c := newTestServer(t)
	for _, path := range []string{"/api/v1/wallet", "/api/v1/me", "/api/v1/investments"} {
		if status, _ := c.do(http.MethodGet, path, "", nil); status != http.StatusUnauthorized {
			t.Fatalf("GET %s status = %d, want 401", path, status)
		}
	}
}

func TestCustomerCannotUseAgentOrAdminRoutes(t *testing.T) {
	c := newTestServer(t)
	token := c.signup("+242060000003")

	deposit := map[string]string{"recipient_phone": "+242060000003", "amount": "500"}
	if status, _ := c.do(http.MethodPost, "/api/v1/deposits/agent", token, deposit); status != http.StatusForbidden {
		t.Fatalf("agent deposit status = %d, want 403", status)
	}
	if status, _ := c.do(http.MethodPost, "/api/v1/admin/agents", token, map[string]string{"phone": "+1", "pin": "1234"}); status != http.StatusForbidden {
		t.Fatalf("admin route status = %d, want 403", status)
	}
}

func TestWebhookRejectsBadSignatureWithoutToken(t *testing.T) {
	c := newTestServer(t)
	status, body := c.do(http.MethodPost, "/api/v1/webhooks/gateway", "", map[string]string{"type": "payment_intent.succeeded"})
	if status != http.StatusBadRequest || !strings.Contains(string(body), `"received":false`) {
		t.Fatalf("webhook: %d %s", status, body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	c := newTestServer(t)
	if status, body := c.do(http.MethodGet, "/healthz", "", nil); status != http.StatusOK {
		t.Fatalf("healthz: %d %s", status, body)
	}
	token := c.signup("+242060000004")
	status, body := c.do(http.MethodPost, "/api/v1/funding/intents", token, map[string]string{"amount": "2500"})
	if status != http.StatusCreated {
		t.Fatalf("create intent: %d %s", status, body)
	}
	var created struct {
		IntentID string `json:"intent_id"`
	}
	c.decode(body, &created)
	if status, body := c.do(http.MethodPost, "/api/v1/funding/intents/"+created.IntentID+"/confirm", token, nil); status != http.StatusOK {
		t.Fatalf("confirm: %d %s", status, body)
	}

	status, body = c.do(http.MethodGet, "/metrics", "", nil)
	if status != http.StatusOK || !strings.Contains(string(body), "walletcore_ledger_mutations_total") {
		t.Fatalf("metrics: %d %s", status, body)
	}
}

func TestInvestmentLifecycleEndToEnd(t *testing.T) {
	c := newTestServer(t)
	token := c.signup("+242060000005")

	status, body := c.do(http.MethodPost, "/api/v1/funding/intents", token, map[string]string{"amount": "15000"})
	if status != http.StatusCreated {
		t.Fatalf("create intent: %d %s", status, body)
	}
	var created struct {
		IntentID string `json:"intent_id"`
	}
	c.decode(body, &created)
	if status, body := c.do(http.MethodPost, "/api/v1/funding/intents/"+created.IntentID+"/confirm", token, nil); status != http.StatusOK {
		t.Fatalf("confirm: %d %s", status, body)
	}

	purchase := map[string]any{"product_id": "savings-6m", "amount": "10000"}
	status, body = c.do(http.MethodPost, "/api/v1/investment-products/quote", token, purchase)
	if status != http.StatusOK {
		t.Fatalf("quote: %d %s", status, body)
	}
	var quote struct {
		ExpectedReturn decimal.Decimal `json:"expected_return"`
	}
	c.decode(body, &quote)

	status, body = c.do(http.MethodPost, "/api/v1/investments", token, purchase)
	if status != http.StatusCreated {
		t.Fatalf("purchase: %d %s", status, body)
	}
	var receipt struct {
		Investment struct {
			ID             string          `json:"id"`
			ExpectedReturn decimal.Decimal `json:"expected_return"`
		} `json:"investment"`
		Balance decimal.Decimal `json:"balance"`
	}
	c.decode(body, &receipt)
	if !receipt.Investment.ExpectedReturn.Equal(quote.ExpectedReturn) {
		t.Fatalf("expected return %s differs from quote %s", receipt.Investment.ExpectedReturn, quote.ExpectedReturn)
	}
	if !receipt.Balance.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("balance after purchase = %s, want 5000", receipt.Balance)
	}

	status, body = c.do(http.MethodPost, "/api/v1/otp", token, map[string]string{"purpose": "INVESTMENT_WITHDRAWAL"})
	if status != http.StatusCreated {
		t.Fatalf("issue otp: %d %s", status, body)
	}
	var issued struct {
		Code string `json:"code"`
	}
	c.decode(body, &issued)

	path := "/api/v1/investments/" + receipt.Investment.ID + "/withdraw"
	if status, body := c.do(http.MethodPost, path, token, map[string]string{"otp_code": issued.Code}); status != http.StatusOK {
		t.Fatalf("early withdrawal: %d %s", status, body)
	}
	if got := c.balance(token); !got.Equal(decimal.NewFromInt(14000)) {
		t.Fatalf("balance after early withdrawal = %s, want 14000", got)
	}
	if status, _ := c.do(http.MethodPost, path, token, map[string]string{"otp_code": issued.Code}); status != http.StatusUnprocessableEntity {
		t.Fatalf("second withdrawal status = %d, want 422", status)
	}
}
