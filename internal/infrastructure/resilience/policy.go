package resilience

import "time"

// Policy bounds the retries and circuit breaking applied to one outbound
// dependency such as a conversion service or the message broker.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Growth    float64

	Breaker BreakerPolicy
}

// BreakerPolicy trips once MinCalls have been observed and the failing
// share of them reaches TripRatio. After Cooldown, Probes calls are let
// through to test the dependency again.
type BreakerPolicy struct {
	Disabled  bool
	MinCalls  uint32
	TripRatio float64
	Cooldown  time.Duration
	Probes    uint32
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  2 * time.Second,
		Growth:    2,
		Breaker: BreakerPolicy{
			MinCalls:  5,
			TripRatio: 0.6,
			Cooldown:  20 * time.Second,
			Probes:    1,
		},
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Growth < 1 {
		p.Growth = def.Growth
	}

	b := &p.Breaker
	if b.MinCalls == 0 {
		b.MinCalls = def.Breaker.MinCalls
	}
	if b.TripRatio <= 0 || b.TripRatio > 1 {
		b.TripRatio = def.Breaker.TripRatio
	}
	if b.Cooldown <= 0 {
		b.Cooldown = def.Breaker.Cooldown
	}
	if b.Probes == 0 {
		b.Probes = def.Breaker.Probes
	}
	return p
}

// delay is the pause after the given failed attempt (1-based).
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Growth
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}
