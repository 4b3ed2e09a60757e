package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/kulu-io/kulu/types"
)

// Account identifies one cloud account to collect from. Credentials are
// resolved by the provider SDK; this package never sees secrets.
type Account struct {
	ID      string `json:"id"`
	Region  string `json:"region"`
	Profile string `json:"profile,omitempty"`
}

// TimeWindow bounds a metric read request
type TimeWindow struct {
	Start time.Time
	End   time.Time
	Step  time.Duration
}

// Point is one raw datapoint returned by a monitoring API, before
// validation
type Point struct {
	Timestamp time.Time
	Value     float64
}

// CloudProvider is the capability interface every provider adapter
// implements. Implementations do network I/O only, no persistence.
type CloudProvider interface {
	// Name returns the provider identifier (e.g. "aws")
	Name() string

	// DiscoverResources lists resources of the given kinds in one
	// account. Transient provider failures return a *ProviderError;
	// credential failures return a *AuthError.
	DiscoverResources(ctx context.Context, account Account, kinds []string) ([]types.Resource, error)

	// ReadMetric returns raw points for one resource/metric over a
	// window at the requested aggregation.
	ReadMetric(ctx context.Context, resource types.Resource, metricName string, window TimeWindow, agg types.Aggregation) ([]Point, error)
}

// ProviderConfig holds provider construction settings
type ProviderConfig struct {
	Region  string
	Profile string
}

// ProviderFactory creates a provider instance
type ProviderFactory func(ctx context.Context, config ProviderConfig) (CloudProvider, error)

// Registry of available providers
var factories = make(map[string]ProviderFactory)

// Register registers a new provider factory. Called from provider
// package init; the kind-to-provider mapping is resolved once at
// startup, not per call.
func Register(name string, factory ProviderFactory) {
	factories[name] = factory
}

// Get creates a provider instance by name
func Get(ctx context.Context, name string, config ProviderConfig) (CloudProvider, error) {
	factory, exists := factories[name]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", name)
	}
	return factory(ctx, config)
}

// List returns available provider names
func List() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
