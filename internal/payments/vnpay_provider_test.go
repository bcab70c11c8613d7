package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestVNPayProvider(t *testing.T) *VNPayProvider {
	t.Helper()
	provider, err := NewVNPayProvider(VNPayProviderConfig{
		PayURL:       "https://sandbox.gateway.test/paymentv2/vpcpay.html",
		MerchantCode: "GLOWMART",
		HashSecret:   "super-secret",
		Clock: func() time.Time {
			return time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("NewVNPayProvider returned error: %v", err)
	}
	return provider
}

func TestNewVNPayProviderValidatesConfig(t *testing.T) {
	if _, err := NewVNPayProvider(VNPayProviderConfig{MerchantCode: "m", HashSecret: "s"}); err == nil {
		t.Fatalf("expected error for missing pay url")
	}
	if _, err := NewVNPayProvider(VNPayProviderConfig{PayURL: "https://g.test", HashSecret: "s"}); err == nil {
		t.Fatalf("expected error for missing merchant code")
	}
	if _, err := NewVNPayProvider(VNPayProviderConfig{PayURL: "https://g.test", MerchantCode: "m"}); err == nil {
		t.Fatalf("expected error for missing hash secret")
	}
}

func TestVNPayCreateCheckoutSessionBuildsSignedURL(t *testing.T) {
	provider := newTestVNPayProvider(t)

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		OrderID:   "order-123",
		Amount:    250000,
		Locale:    "en-US",
		ReturnURL: "https://api.glowmart.test/api/order/confirm-payment/order-123",
		ExpiresIn: time.Hour,
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession returned error: %v", err)
	}
	if session.Provider != "vnpay" {
		t.Fatalf("expected provider vnpay, got %q", session.Provider)
	}
	want := time.Date(2024, time.March, 1, 11, 0, 0, 0, time.UTC)
	if !session.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, session.ExpiresAt)
	}

	parsed, err := url.Parse(session.RedirectURL)
	if err != nil {
		t.Fatalf("redirect url did not parse: %v", err)
	}
	query := parsed.Query()
	if got := query.Get("vnp_Amount"); got != "25000000" {
		t.Fatalf("expected amount scaled by 100, got %q", got)
	}
	if got := query.Get("vnp_TxnRef"); got != "order-123" {
		t.Fatalf("expected txn ref order-123, got %q", got)
	}
	if got := query.Get("vnp_Locale"); got != "en" {
		t.Fatalf("expected locale en, got %q", got)
	}
	if got := query.Get("vnp_CreateDate"); got != "20240301100000" {
		t.Fatalf("unexpected create date %q", got)
	}
	if query.Get("vnp_SecureHash") == "" {
		t.Fatalf("expected secure hash on redirect url")
	}

	// The hash must cover the sorted query without the hash itself.
	rawQuery := parsed.RawQuery
	idx := strings.Index(rawQuery, "&vnp_SecureHash=")
	if idx < 0 {
		t.Fatalf("secure hash not appended last: %q", rawQuery)
	}
	mac := hmac.New(sha512.New, []byte("super-secret"))
	mac.Write([]byte(rawQuery[:idx]))
	if want := hex.EncodeToString(mac.Sum(nil)); query.Get("vnp_SecureHash") != want {
		t.Fatalf("secure hash mismatch")
	}
}

func TestVNPayCreateCheckoutSessionRejectsBadInput(t *testing.T) {
	provider := newTestVNPayProvider(t)
	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{Amount: 100}); err == nil {
		t.Fatalf("expected error for missing order id")
	}
	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{OrderID: "o-1"}); err == nil {
		t.Fatalf("expected error for non-positive amount")
	}
}

func TestVNPayVerifyCallbackRoundTrip(t *testing.T) {
	provider := newTestVNPayProvider(t)

	params := map[string]string{
		"vnp_TxnRef":        "order-123",
		"vnp_Amount":        "25000000",
		"vnp_ResponseCode":  "00",
		"vnp_TransactionNo": "14226112",
	}
	signature := provider.sign(canonicalQuery(params))

	withHash := map[string]string{
		"vnp_SecureHash":     signature,
		"vnp_SecureHashType": "HmacSHA512",
		"unrelated":          "ignored",
	}
	for k, v := range params {
		withHash[k] = v
	}

	if err := provider.VerifyCallback(withHash, signature); err != nil {
		t.Fatalf("VerifyCallback returned error: %v", err)
	}
}

func TestVNPayVerifyCallbackRejectsTampering(t *testing.T) {
	provider := newTestVNPayProvider(t)

	params := map[string]string{
		"vnp_TxnRef":       "order-123",
		"vnp_Amount":       "25000000",
		"vnp_ResponseCode": "00",
	}
	signature := provider.sign(canonicalQuery(params))

	params["vnp_Amount"] = "100"
	if err := provider.VerifyCallback(params, signature); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
	if err := provider.VerifyCallback(params, ""); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch for empty signature, got %v", err)
	}
}
