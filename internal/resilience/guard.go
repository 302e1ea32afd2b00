package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"docdash/internal/config"
	"docdash/internal/port"
)

// errServerStatus marks a 5xx answer so the breaker counts it as a failure
// while the caller still receives the response.
var errServerStatus = errors.New("gateway answered with a server error")

// Guard rate-limits gateway calls and trips a per-operation circuit breaker
// when the gateway keeps failing. A 404 or any other non-5xx answer counts
// as a healthy call.
type Guard struct {
	cfg     config.ResilienceConfig
	limiter *rate.Limiter
	logger  *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*port.GatewayResponse]
}

// NewGuard creates a Guard. A non-positive rate disables limiting.
func NewGuard(cfg config.ResilienceConfig, logger *zap.Logger) *Guard {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	if cfg.BreakerMinRequests == 0 {
		cfg.BreakerMinRequests = 10
	}
	if cfg.BreakerFailureRatio <= 0 || cfg.BreakerFailureRatio > 1 {
		cfg.BreakerFailureRatio = 0.5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		cfg:      cfg,
		limiter:  limiter,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*port.GatewayResponse]),
	}
}

// Do runs fn under the rate limiter and the breaker for operation.
func (g *Guard) Do(
	ctx context.Context,
	operation string,
	fn func(context.Context) (*port.GatewayResponse, error),
) (*port.GatewayResponse, error) {
	if fn == nil {
		return nil, fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	if !g.cfg.BreakerEnabled {
		return fn(ctx)
	}

	resp, err := g.circuitBreaker(op).Execute(func() (*port.GatewayResponse, error) {
		resp, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	return resp, err
}

func (g *Guard) circuitBreaker(operation string) *gobreaker.CircuitBreaker[*port.GatewayResponse] {
	g.mu.Lock()
	defer g.mu.Unlock()

	if breaker, ok := g.breakers[operation]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:    operation,
		Timeout: g.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < g.cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= g.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about gateway health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			g.logger.Warn("resilience.Guard: circuit breaker state change",
				zap.String("operation", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	breaker := gobreaker.NewCircuitBreaker[*port.GatewayResponse](settings)
	g.breakers[operation] = breaker
	return breaker
}

// IsCircuitOpen reports whether err came from an open or saturated breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
