package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// PaymobProvider implements PaymobGateway over the Paymob REST API.
type PaymobProvider struct {
	cfg    PaymobConfig
	client *http.Client
}

// NewPaymobProvider creates a Paymob gateway.
func NewPaymobProvider(cfg PaymobConfig) (*PaymobProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &PaymobProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout, Transport: cfg.Transport},
	}, nil
}

type intentionRequest struct {
	Amount           int64           `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentMethods   []int64         `json:"payment_methods"`
	Items            []IntentionItem `json:"items"`
	BillingData      BillingData     `json:"billing_data"`
	SpecialReference string          `json:"special_reference"`
	Extras           map[string]any  `json:"extras"`
	NotificationURL  string          `json:"notification_url,omitempty"`
	RedirectionURL   string          `json:"redirection_url,omitempty"`
	Expiration       int             `json:"expiration,omitempty"`
}

// CreateIntention registers a payment intention.
func (p *PaymobProvider) CreateIntention(ctx context.Context, params IntentionParams) (*Intention, error) {
	body := intentionRequest{
		Amount:           params.AmountCents,
		Currency:         params.Currency,
		PaymentMethods:   params.IntegrationIDs,
		Items:            params.Items,
		BillingData:      params.Billing.withDefaults(),
		SpecialReference: params.CorrelationID,
		Extras:           map[string]any{"ee": params.CorrelationID},
		NotificationURL:  params.NotificationURL,
		RedirectionURL:   params.RedirectionURL,
		Expiration:       params.ExpirationSeconds,
	}

	var out Intention
	if err := p.do(ctx, "create intention", "/v1/intention/", "Token "+p.cfg.SecretKey, body, &out); err != nil {
		return nil, err
	}
	if out.ClientSecret == "" {
		return nil, fmt.Errorf("paymob: intention %q returned no client secret", out.ID)
	}
	return &out, nil
}

// CheckoutURL builds the unified checkout URL for an intention.
func (p *PaymobProvider) CheckoutURL(clientSecret string) string {
	q := url.Values{}
	q.Set("publicKey", p.cfg.PublicKey)
	q.Set("clientSecret", clientSecret)
	return p.cfg.baseURL() + "/unifiedcheckout/?" + q.Encode()
}

// Refund refunds amountCents of a settled transaction.
func (p *PaymobProvider) Refund(ctx context.Context, transactionID string, amountCents int64) (*PaymobTransaction, error) {
	return p.acceptance(ctx, "refund", "/api/acceptance/void_refund/refund", map[string]any{
		"transaction_id": transactionID,
		"amount_cents":   amountCents,
	})
}

// Void cancels a same-day transaction before settlement.
func (p *PaymobProvider) Void(ctx context.Context, transactionID string) (*PaymobTransaction, error) {
	return p.acceptance(ctx, "void", "/api/acceptance/void_refund/void", map[string]any{
		"transaction_id": transactionID,
	})
}

// Capture captures amountCents of an auth-only transaction.
func (p *PaymobProvider) Capture(ctx context.Context, transactionID string, amountCents int64) (*PaymobTransaction, error) {
	return p.acceptance(ctx, "capture", "/api/acceptance/capture", map[string]any{
		"transaction_id": transactionID,
		"amount_cents":   amountCents,
	})
}

// acceptance calls one of the legacy transaction endpoints. Those take a
// short-lived bearer token, so a fresh one is fetched for every call.
func (p *PaymobProvider) acceptance(ctx context.Context, op, path string, body map[string]any) (*PaymobTransaction, error) {
	token, err := p.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var tx PaymobTransaction
	if err := p.do(ctx, op, path, "Bearer "+token, body, &tx); err != nil {
		return nil, err
	}
	if !tx.Success {
		msg := tx.Data.Message
		if msg == "" {
			msg = "no reason given"
		}
		return &tx, fmt.Errorf("%w: %s transaction %d: %s", ErrTransactionRejected, op, tx.ID, msg)
	}
	return &tx, nil
}

func (p *PaymobProvider) authenticate(ctx context.Context) (string, error) {
	if p.cfg.APIKey == "" {
		return "", ErrInvalidAPIKey
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := p.do(ctx, "authenticate", "/api/auth/tokens", "", map[string]string{"api_key": p.cfg.APIKey}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("paymob: authentication returned no token")
	}
	return out.Token, nil
}

func (p *PaymobProvider) do(ctx context.Context, op, path, authorization string, payload, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.baseURL()+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("paymob: %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &PaymobError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", op, err)
	}
	return nil
}

// withDefaults fills the fields Paymob rejects when empty.
func (b BillingData) withDefaults() BillingData {
	orNA := func(s string) string {
		if s == "" {
			return "NA"
		}
		return s
	}
	b.FirstName = orNA(b.FirstName)
	b.LastName = orNA(b.LastName)
	b.Email = orNA(b.Email)
	b.PhoneNumber = orNA(b.PhoneNumber)
	b.Street = orNA(b.Street)
	b.City = orNA(b.City)
	b.State = orNA(b.State)
	b.Building = orNA(b.Building)
	b.Floor = orNA(b.Floor)
	b.Apartment = orNA(b.Apartment)
	if b.Country == "" {
		b.Country = "EG"
	}
	return b
}

// TransactionIDString formats a Paymob transaction id for storage.
func TransactionIDString(id int64) string {
	return strconv.FormatInt(id, 10)
}
