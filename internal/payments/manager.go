package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Manager routes calls to a registered Provider by name.
type Manager struct {
	providers map[string]Provider
	fallback  string
}

type ManagerOption func(*Manager)

// WithDefaultProvider names the provider used when a caller does not pick one.
func WithDefaultProvider(name string) ManagerOption {
	return func(m *Manager) { m.fallback = providerKey(name) }
}

// NewManager registers providers under case-insensitive names. With a single provider
// that provider is also the default.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	m := &Manager{providers: make(map[string]Provider, len(providers))}
	for name, p := range providers {
		key := providerKey(name)
		if key == "" || p == nil {
			return nil, fmt.Errorf("payments: invalid provider registration %q", name)
		}
		m.providers[key] = p
		if len(providers) == 1 {
			m.fallback = key
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.fallback != "" {
		if _, ok := m.providers[m.fallback]; !ok {
			return nil, fmt.Errorf("%w: default %s is not registered", ErrUnsupportedProvider, m.fallback)
		}
	}
	return m, nil
}

func (m *Manager) provider(name string) (string, Provider, error) {
	key := providerKey(name)
	if key == "" {
		key = m.fallback
	}
	if key == "" {
		return "", nil, fmt.Errorf("%w: no provider named and no default", ErrUnsupportedProvider)
	}
	p, ok := m.providers[key]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, key)
	}
	return key, p, nil
}

// CreatePaymentIntent opens an intent with the named provider, or the default when name is blank.
func (m *Manager) CreatePaymentIntent(ctx context.Context, name string, req IntentRequest) (Intent, error) {
	key, p, err := m.provider(name)
	if err != nil {
		return Intent{}, err
	}
	intent, err := p.CreatePaymentIntent(ctx, req)
	if err != nil {
		return Intent{}, err
	}
	intent.Provider = key
	return intent, nil
}

// ParseWebhook verifies a callback. The provider comes from the callback route and must be named.
func (m *Manager) ParseWebhook(name string, payload []byte, signature string) (WebhookEvent, error) {
	if providerKey(name) == "" {
		return WebhookEvent{}, ErrUnsupportedProvider
	}
	key, p, err := m.provider(name)
	if err != nil {
		return WebhookEvent{}, err
	}
	event, err := p.ParseWebhook(payload, signature)
	if err != nil {
		return WebhookEvent{}, err
	}
	event.Provider = key
	return event, nil
}

func (m *Manager) Refund(ctx context.Context, name string, req RefundRequest) (PaymentDetails, error) {
	key, p, err := m.provider(name)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := p.Refund(ctx, req)
	if err == nil && details.Provider == "" {
		details.Provider = key
	}
	return details, err
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
