package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/kulu-io/kulu/providers"
)

// Pool hands out one gateway per account, constructing the underlying
// provider client on first use. Safe for concurrent use.
type Pool struct {
	providerName string
	cfg          Config

	mu       sync.Mutex
	gateways map[string]*Gateway
}

// NewPool creates a pool for one provider
func NewPool(providerName string, cfg Config) *Pool {
	return &Pool{
		providerName: providerName,
		cfg:          cfg,
		gateways:     make(map[string]*Gateway),
	}
}

// For returns the gateway for an account, creating it on first call.
// All callers for the same account share one rate limiter.
func (p *Pool) For(ctx context.Context, account providers.Account) (*Gateway, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gw, ok := p.gateways[account.ID]; ok {
		return gw, nil
	}

	provider, err := providers.Get(ctx, p.providerName, providers.ProviderConfig{
		Region:  account.Region,
		Profile: account.Profile,
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s client for account %s: %w", p.providerName, account.ID, err)
	}

	gw := New(provider, account, p.cfg)
	p.gateways[account.ID] = gw
	return gw, nil
}

// Size returns the number of gateways created so far
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.gateways)
}
