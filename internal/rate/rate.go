package rate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chartsboard/chartsboard/internal/config"
	"github.com/chartsboard/chartsboard/internal/models"
	"github.com/chartsboard/chartsboard/pkg/logger"
)

// Options configures a Provider instance.
type Options struct {
	// URL of the external rate source. Empty disables fetching.
	URL string
	// TTL is how long a fetched rate stays fresh.
	TTL time.Duration
	// FetchTimeout bounds one external fetch.
	FetchTimeout time.Duration
	// Default is returned when no value was ever fetched.
	Default decimal.Decimal
	// Rounding is one of config.RoundFloor, RoundCeil, RoundHalf.
	Rounding string
}

// Provider serves the charts-per-star conversion rate with bounded staleness.
// Rate never fails: an expired cache value beats the default, the default
// beats an error.
type Provider struct {
	logger *logger.Logger
	opts   Options
	client *http.Client

	// fetchMu serializes external fetches so concurrent cache misses
	// collapse into one call. It is never held while mu is.
	fetchMu sync.Mutex

	mu        sync.Mutex
	cached    decimal.Decimal
	hasCached bool
	expiresAt time.Time

	now func() time.Time
}

func NewProvider(opts Options, logger *logger.Logger) *Provider {
	return &Provider{
		logger: logger,
		opts:   opts,
		client: &http.Client{Timeout: opts.FetchTimeout},
		now:    time.Now,
	}
}

// Rate returns the current charts-per-star rate.
func (p *Provider) Rate(ctx context.Context) decimal.Decimal {
	if v, ok := p.cachedRate(false); ok {
		return v
	}

	p.fetchMu.Lock()
	defer p.fetchMu.Unlock()

	// Another caller may have refreshed the cache while we waited.
	if v, ok := p.cachedRate(false); ok {
		return v
	}

	if p.opts.URL != "" {
		rate, err := p.fetch(ctx)
		if err == nil {
			p.store(rate)
			p.logger.Infof("fetched new rate: %s charts per star", rate)
			return rate
		}
		p.logger.Warnf("failed to fetch rate: %v", err)
	}

	if v, ok := p.cachedRate(true); ok {
		p.logger.Warnf("serving stale rate: %s", v)
		return v
	}

	return p.opts.Default
}

// cachedRate reads the cache under the value lock. With allowStale it
// returns an expired value too.
func (p *Provider) cachedRate(allowStale bool) (decimal.Decimal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasCached {
		return decimal.Zero, false
	}
	if !allowStale && p.now().After(p.expiresAt) {
		return decimal.Zero, false
	}
	return p.cached, true
}

func (p *Provider) store(rate decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = rate
	p.hasCached = true
	p.expiresAt = p.now().Add(p.opts.TTL)
}

func (p *Provider) fetch(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.URL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", models.ErrExternalUnavailable, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", models.ErrExternalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: rate source returned %d", models.ErrExternalUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", models.ErrExternalUnavailable, err)
	}

	rate, err := ParseResponse(body)
	if err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}

// Convert computes charts from a stars amount with the configured rounding,
// applied exactly once. Results are meant to be snapshotted by the caller.
func (p *Provider) Convert(stars int, rate decimal.Decimal) decimal.Decimal {
	product := rate.Mul(decimal.NewFromInt(int64(stars)))
	switch p.opts.Rounding {
	case config.RoundCeil:
		return product.RoundCeil(2)
	case config.RoundHalf:
		return product.Round(2)
	default:
		return product.RoundFloor(2)
	}
}
