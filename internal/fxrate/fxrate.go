// Package fxrate holds the USD→INR conversion rate used to localise
// order-book feed prices. The rate starts at a hardcoded fallback, is
// refreshed from a public JSON endpoint every five minutes, and is never
// cleared: a failed or malformed fetch leaves the previous value in place.
package fxrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

const (
	// FallbackRate is used before the first successful fetch.
	FallbackRate = 88.65

	defaultURL      = "https://api.exchangerate-api.com/v4/latest/USD"
	defaultInterval = 5 * time.Minute
)

type ratePayload struct {
	Rates map[string]float64 `json:"rates"`
}

// Provider fetches and caches the USD→INR rate.
type Provider struct {
	mu   sync.RWMutex
	rate float64

	url      string
	interval time.Duration
	client   *http.Client

	// Optional hooks for metrics.
	OnRefresh func(rate float64)
	OnError   func()
}

// New creates a Provider initialised to the fallback rate.
func New() *Provider {
	return &Provider{
		rate:     FallbackRate,
		url:      defaultURL,
		interval: defaultInterval,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// NewWithConfig overrides the endpoint and refresh interval when non-zero.
func NewWithConfig(url string, interval time.Duration) *Provider {
	p := New()
	if url != "" {
		p.url = url
	}
	if interval > 0 {
		p.interval = interval
	}
	return p
}

// Rate returns the current USD→INR rate. Never zero.
func (p *Provider) Rate() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rate
}

// Refresh fetches the rate once. On any error the cached rate is left
// untouched and the error returned.
func (p *Provider) Refresh(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fxrate fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fxrate fetch: unexpected status %d", resp.StatusCode)
	}

	var payload ratePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("fxrate fetch: decode: %w", err)
	}

	inr, ok := payload.Rates["INR"]
	if !ok || inr <= 0 {
		return 0, fmt.Errorf("fxrate fetch: payload missing INR rate")
	}

	// Apply only while the owning context is still live; a refresh that
	// completes after teardown must not mutate anything.
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	p.mu.Lock()
	p.rate = inr
	p.mu.Unlock()

	if p.OnRefresh != nil {
		p.OnRefresh(inr)
	}
	return inr, nil
}

// Start refreshes once immediately, then on the configured interval until
// ctx is cancelled. Fetch failures are logged and the loop continues.
func (p *Provider) Start(ctx context.Context) {
	if rate, err := p.Refresh(ctx); err != nil {
		log.Printf("[fxrate] initial fetch failed: %v (using %.2f)", err, p.Rate())
		if p.OnError != nil {
			p.OnError()
		}
	} else {
		log.Printf("[fxrate] USD→INR rate: %.4f", rate)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rate, err := p.Refresh(ctx)
			if err != nil {
				log.Printf("[fxrate] refresh failed: %v (keeping %.4f)", err, p.Rate())
				if p.OnError != nil {
					p.OnError()
				}
				continue
			}
			log.Printf("[fxrate] USD→INR rate updated: %.4f", rate)
		}
	}
}
