// Package marketdata reconciles live feed ticks against the instrument
// registry. Two normalizers share one update primitive: the flat path for
// futures/options ticks and the order-book path for USD-quoted FX-style
// instruments.
package marketdata

import (
	"time"

	"marketwatchv1/internal/registry"
)

// Normalizer routes decoded ticks onto registry entries.
type Normalizer struct {
	reg  *registry.Registry
	rate func() float64 // current USD→INR rate
	now  func() time.Time

	// OnUpdate fires once per instrument actually updated. Observability
	// only; it drives the process-wide update counter.
	OnUpdate func()
}

// New creates a Normalizer. rate must never return zero for the order-book
// path to produce meaningful local prices.
func New(reg *registry.Registry, rate func() float64) *Normalizer {
	return &Normalizer{
		reg:  reg,
		rate: rate,
		now:  time.Now,
	}
}

func (n *Normalizer) updated() {
	if n.OnUpdate != nil {
		n.OnUpdate()
	}
}
