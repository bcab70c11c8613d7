package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glowmart/api/internal/platform/textutil"
)

var (
	// ErrProviderNotFound indicates no provider matched the request.
	ErrProviderNotFound = errors.New("payments: provider not found")
	// ErrCallbackUnsupported indicates the provider has no hosted-redirect callback.
	ErrCallbackUnsupported = errors.New("payments: callback verification unsupported")
	// ErrSignatureMismatch indicates the callback signature did not verify.
	ErrSignatureMismatch = errors.New("payments: signature mismatch")
)

// CheckoutItem describes one purchasable line forwarded to the provider.
type CheckoutItem struct {
	SKU      string
	Name     string
	Amount   int64
	Quantity int64
}

// CheckoutSessionRequest asks a provider to prepare a hosted payment page.
type CheckoutSessionRequest struct {
	// Provider optionally forces a specific provider by name.
	Provider string
	OrderID  string
	// Amount is the order total in minor currency units.
	Amount   int64
	Currency string
	Locale   string
	// ReturnURL is where the gateway sends the shopper after payment.
	ReturnURL string
	// ExpiresIn bounds how long the session stays payable.
	ExpiresIn      time.Duration
	IdempotencyKey string
	Items          []CheckoutItem
	Metadata       map[string]string
}

// CheckoutSession is the provider's hosted payment handle.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
}

// Provider abstracts a payment gateway able to host a checkout page.
type Provider interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	// VerifyCallback validates the signature the gateway attached to its
	// redirect callback. Providers without redirect callbacks return
	// ErrCallbackUnsupported.
	VerifyCallback(params map[string]string, signature string) error
}

// Manager routes checkout requests to the configured providers.
type Manager struct {
	providers   map[string]Provider
	defaultName string
}

// ManagerOption customises Manager construction.
type ManagerOption func(*Manager) error

// WithProvider registers a provider under its name.
func WithProvider(p Provider) ManagerOption {
	return func(m *Manager) error {
		if p == nil {
			return errors.New("payments: provider is nil")
		}
		name := strings.ToLower(strings.TrimSpace(p.Name()))
		if name == "" {
			return errors.New("payments: provider name is required")
		}
		if _, exists := m.providers[name]; exists {
			return fmt.Errorf("payments: provider %s already registered", name)
		}
		m.providers[name] = p
		return nil
	}
}

// WithDefaultProvider selects the provider used when requests do not name one.
func WithDefaultProvider(name string) ManagerOption {
	return func(m *Manager) error {
		m.defaultName = strings.ToLower(strings.TrimSpace(name))
		return nil
	}
}

// NewManager constructs a Manager from the supplied options.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	m := &Manager{providers: make(map[string]Provider)}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if len(m.providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	if m.defaultName == "" && len(m.providers) == 1 {
		for name := range m.providers {
			m.defaultName = name
		}
	}
	if _, ok := m.providers[m.defaultName]; !ok {
		return nil, fmt.Errorf("payments: default provider %q not registered", m.defaultName)
	}
	return m, nil
}

// CreateCheckoutSession resolves a provider and delegates session creation.
func (m *Manager) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	provider, err := m.resolve(req.Provider)
	if err != nil {
		return CheckoutSession{}, err
	}
	req.Metadata = textutil.NormalizeStringMap(req.Metadata)
	session, err := provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		return CheckoutSession{}, err
	}
	if session.Provider == "" {
		session.Provider = provider.Name()
	}
	return session, nil
}

// VerifyCallback delegates signature verification to the default provider,
// which owns the hosted-redirect flow.
func (m *Manager) VerifyCallback(params map[string]string, signature string) error {
	provider, err := m.resolve("")
	if err != nil {
		return err
	}
	return provider.VerifyCallback(params, signature)
}

func (m *Manager) resolve(preferred string) (Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return nil, ErrProviderNotFound
	}
	name := strings.ToLower(strings.TrimSpace(preferred))
	if name == "" {
		name = m.defaultName
	}
	provider, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return provider, nil
}
