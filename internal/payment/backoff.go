package payment

import (
	"crypto/rand"
	"math/big"
	"time"
)

// Watch schedule defaults: start at 2s, grow by 1s per attempt up to 10s,
// give up after 60 status checks.
const (
	DefaultInitialDelay = 2 * time.Second
	DefaultDelayStep    = time.Second
	DefaultMaxDelay     = 10 * time.Second
	DefaultMaxAttempts  = 60
)

// Backoff yields a linearly growing, capped and jittered polling schedule.
type Backoff struct {
	InitialDelay time.Duration
	Step         time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	// JitterFraction adds up to this share of the delay at random.
	JitterFraction float64
}

// DefaultBackoff returns the standard settlement polling schedule.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay:   DefaultInitialDelay,
		Step:           DefaultDelayStep,
		MaxDelay:       DefaultMaxDelay,
		MaxAttempts:    DefaultMaxAttempts,
		JitterFraction: 0.1,
	}
}

func (b Backoff) withDefaults() Backoff {
	def := DefaultBackoff()
	if b.InitialDelay <= 0 {
		b.InitialDelay = def.InitialDelay
	}
	if b.Step < 0 {
		b.Step = 0
	}
	if b.MaxDelay < b.InitialDelay {
		b.MaxDelay = b.InitialDelay
	}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = def.MaxAttempts
	}
	if b.JitterFraction < 0 {
		b.JitterFraction = 0
	}
	return b
}

// Attempts returns the number of status checks before giving up.
func (b Backoff) Attempts() int {
	return b.withDefaults().MaxAttempts
}

// BaseDelay is the un-jittered wait after the given zero-based attempt.
func (b Backoff) BaseDelay(attempt int) time.Duration {
	b = b.withDefaults()
	if attempt < 0 {
		attempt = 0
	}
	if b.Step == 0 {
		return b.InitialDelay
	}
	if steps := (b.MaxDelay - b.InitialDelay) / b.Step; time.Duration(attempt) > steps {
		return b.MaxDelay
	}
	return b.InitialDelay + time.Duration(attempt)*b.Step
}

// Delay returns the jittered wait after the given zero-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.BaseDelay(attempt)
	fraction := b.withDefaults().JitterFraction
	return base + randomJitter(time.Duration(float64(base)*fraction))
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
