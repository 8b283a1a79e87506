// Package backoff calcula esperas exponenciales con jitter completo para reintentos acotados.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

const maxShift = 30

// Exponential devuelve base * 2^attempt, acotado por max (max <= 0 = sin tope).
func Exponential(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxShift {
		attempt = maxShift
	}
	d := base << attempt
	if d < base || (max > 0 && d > max) {
		return max
	}
	return d
}

// FullJitter devuelve una duración aleatoria en [0, d).
func FullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d)))
}

// ExponentialWithJitter combina ambos: aleatorio en [0, min(base*2^attempt, max)).
func ExponentialWithJitter(base, max time.Duration, attempt int) time.Duration {
	return FullJitter(Exponential(base, max, attempt))
}

// Sleep espera d o hasta que ctx se cancele; devuelve ctx.Err() en ese caso.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
