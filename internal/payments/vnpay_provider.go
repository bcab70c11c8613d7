package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	vnpayProviderName = "vnpay"

	vnpayVersion    = "2.1.0"
	vnpayCommandPay = "pay"
	vnpayCurrency   = "VND"
	vnpayDateLayout = "20060102150405"

	defaultVNPaySessionTTL = 24 * time.Hour
)

// VNPayLogger defines the logging contract for gateway operations.
type VNPayLogger func(ctx context.Context, event string, fields map[string]any)

// VNPayProviderConfig configures the hosted-redirect gateway provider.
type VNPayProviderConfig struct {
	// PayURL is the gateway's hosted payment page endpoint.
	PayURL string
	// MerchantCode identifies this shop at the gateway (vnp_TmnCode).
	MerchantCode string
	// HashSecret signs pay URLs and verifies callback signatures.
	HashSecret string
	// Location is the timezone the gateway expects in timestamps.
	Location *time.Location
	Logger   VNPayLogger
	Clock    func() time.Time
}

// VNPayProvider builds signed hosted payment URLs and verifies the signature
// on the gateway's redirect callback. Amounts are sent multiplied by 100, as
// the gateway protocol requires.
type VNPayProvider struct {
	payURL   string
	merchant string
	secret   []byte
	loc      *time.Location
	logger   VNPayLogger
	clock    func() time.Time
}

// NewVNPayProvider constructs a VNPayProvider using the given configuration.
func NewVNPayProvider(cfg VNPayProviderConfig) (*VNPayProvider, error) {
	payURL := strings.TrimSpace(cfg.PayURL)
	if payURL == "" {
		return nil, errors.New("vnpay: pay url is required")
	}
	if _, err := url.Parse(payURL); err != nil {
		return nil, fmt.Errorf("vnpay: invalid pay url: %w", err)
	}
	merchant := strings.TrimSpace(cfg.MerchantCode)
	if merchant == "" {
		return nil, errors.New("vnpay: merchant code is required")
	}
	secret := strings.TrimSpace(cfg.HashSecret)
	if secret == "" {
		return nil, errors.New("vnpay: hash secret is required")
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &VNPayProvider{
		payURL:   payURL,
		merchant: merchant,
		secret:   []byte(secret),
		loc:      loc,
		logger:   logger,
		clock:    clock,
	}, nil
}

// Name implements Provider.
func (p *VNPayProvider) Name() string { return vnpayProviderName }

// CreateCheckoutSession builds the signed hosted payment URL for the order.
func (p *VNPayProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("vnpay: provider is nil")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return CheckoutSession{}, errors.New("vnpay: order id is required")
	}
	if req.Amount <= 0 {
		return CheckoutSession{}, errors.New("vnpay: amount must be > 0")
	}

	ttl := req.ExpiresIn
	if ttl <= 0 {
		ttl = defaultVNPaySessionTTL
	}
	now := p.clock().In(p.loc)
	expires := now.Add(ttl)

	locale := "vn"
	if l := strings.ToLower(strings.TrimSpace(req.Locale)); strings.HasPrefix(l, "en") {
		locale = "en"
	}

	params := map[string]string{
		"vnp_Version":    vnpayVersion,
		"vnp_Command":    vnpayCommandPay,
		"vnp_TmnCode":    p.merchant,
		"vnp_Amount":     strconv.FormatInt(req.Amount*100, 10),
		"vnp_CurrCode":   vnpayCurrency,
		"vnp_TxnRef":     orderID,
		"vnp_OrderInfo":  "Payment for order " + orderID,
		"vnp_OrderType":  "other",
		"vnp_Locale":     locale,
		"vnp_CreateDate": now.Format(vnpayDateLayout),
		"vnp_ExpireDate": expires.Format(vnpayDateLayout),
	}
	if returnURL := strings.TrimSpace(req.ReturnURL); returnURL != "" {
		params["vnp_ReturnUrl"] = returnURL
	}

	query := canonicalQuery(params)
	signature := p.sign(query)
	redirect := p.payURL + "?" + query + "&vnp_SecureHash=" + signature

	p.logger(ctx, "payments.vnpay.session.created", map[string]any{
		"orderId":   orderID,
		"amount":    req.Amount,
		"expiresAt": expires.Format(time.RFC3339),
	})

	return CheckoutSession{
		ID:          orderID,
		Provider:    vnpayProviderName,
		RedirectURL: redirect,
		ExpiresAt:   expires,
	}, nil
}

// VerifyCallback recomputes the signature over the callback parameters and
// compares it against the gateway-provided hash.
func (p *VNPayProvider) VerifyCallback(params map[string]string, signature string) error {
	if p == nil {
		return errors.New("vnpay: provider is nil")
	}
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return ErrSignatureMismatch
	}

	filtered := make(map[string]string, len(params))
	for key, value := range params {
		if key == "vnp_SecureHash" || key == "vnp_SecureHashType" {
			continue
		}
		if !strings.HasPrefix(key, "vnp_") {
			continue
		}
		filtered[key] = value
	}

	expected := p.sign(canonicalQuery(filtered))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

func (p *VNPayProvider) sign(payload string) string {
	mac := hmac.New(sha512.New, p.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery renders the parameters sorted by key and URL-encoded, the
// exact form the gateway hashes on its side.
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if value == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[key]))
	}
	return b.String()
}
