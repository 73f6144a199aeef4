package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const payLinkProviderName = "paylink"

// defaultSessionTTL bounds how long a hosted page link stays valid.
const defaultSessionTTL = 30 * time.Minute

// PayLinkConfig captures the merchant credentials for the hosted payment page.
type PayLinkConfig struct {
	MerchantCode  string
	Secret        string
	HostedPageURL string
	CallbackURL   string
	SessionTTL    time.Duration
	Clock         func() time.Time
}

// PayLinkProvider builds signed redirect URLs for the PayLink hosted payment
// page. PayLink exposes no server-side API: refunds and lookups are settled
// through the merchant back office, so those operations return sentinels.
type PayLinkProvider struct {
	merchantCode string
	secret       []byte
	hostedPage   *url.URL
	callbackURL  string
	sessionTTL   time.Duration
	clock        func() time.Time
}

// NewPayLinkProvider validates the configuration and constructs the provider.
func NewPayLinkProvider(cfg PayLinkConfig) (*PayLinkProvider, error) {
	merchant := strings.TrimSpace(cfg.MerchantCode)
	if merchant == "" {
		return nil, errors.New("payments: paylink merchant code is required")
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("payments: paylink secret is required")
	}
	hosted, err := url.Parse(strings.TrimSpace(cfg.HostedPageURL))
	if err != nil || hosted.Scheme == "" || hosted.Host == "" {
		return nil, fmt.Errorf("payments: invalid paylink hosted page url %q", cfg.HostedPageURL)
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &PayLinkProvider{
		merchantCode: merchant,
		secret:       []byte(cfg.Secret),
		hostedPage:   hosted,
		callbackURL:  strings.TrimSpace(cfg.CallbackURL),
		sessionTTL:   ttl,
		clock:        clock,
	}, nil
}

// CreateSession builds the signed hosted page URL the customer is redirected to.
func (p *PayLinkProvider) CreateSession(_ context.Context, req SessionRequest) (Session, error) {
	if strings.TrimSpace(req.OrderNumber) == "" {
		return Session{}, errors.New("payments: order number is required")
	}
	if req.Amount <= 0 {
		return Session{}, errors.New("payments: amount must be positive")
	}
	now := p.clock().UTC()
	values := url.Values{}
	values.Set("merchant", p.merchantCode)
	values.Set("orderRef", req.OrderNumber)
	values.Set("amount", strconv.FormatInt(req.Amount, 10))
	values.Set("currency", strings.ToUpper(req.Currency))
	if req.CustomerEmail != "" {
		values.Set("email", req.CustomerEmail)
	}
	if req.Locale != "" {
		values.Set("locale", req.Locale)
	}
	if p.callbackURL != "" {
		values.Set("callbackUrl", p.callbackURL)
	}
	values.Set("token", SignIntegrityToken(p.secret, req.OrderNumber, "init", req.Amount))

	redirect := *p.hostedPage
	redirect.RawQuery = values.Encode()
	return Session{
		ID:          req.OrderNumber,
		Provider:    payLinkProviderName,
		RedirectURL: redirect.String(),
		ExpiresAt:   now.Add(p.sessionTTL),
	}, nil
}

// Refund is not supported: PayLink refunds go through the merchant back office.
func (p *PayLinkProvider) Refund(context.Context, RefundRequest) (PaymentDetails, error) {
	return PaymentDetails{}, ErrRefundNotSupported
}

// Lookup is not supported: PayLink pushes state via callbacks only.
func (p *PayLinkProvider) Lookup(context.Context, LookupRequest) (PaymentDetails, error) {
	return PaymentDetails{}, ErrLookupNotSupported
}

// SignIntegrityToken computes the hex encoded HMAC-SHA256 token over the
// canonical orderReference|status|amount callback payload.
func SignIntegrityToken(secret []byte, orderReference, status string, amount int64) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s|%s|%d", orderReference, status, amount)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyIntegrityToken reports whether the supplied token matches the expected
// signature for the payload, using a constant time comparison.
func VerifyIntegrityToken(secret []byte, orderReference, status string, amount int64, token string) bool {
	expected := SignIntegrityToken(secret, orderReference, status, amount)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(token))))
}
