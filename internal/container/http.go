package container

import (
	"fmt"
	"math"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/samber/do"
	"github.com/serroba/window-limiter/internal/alerts"
	"github.com/serroba/window-limiter/internal/clock"
	"github.com/serroba/window-limiter/internal/handlers"
	"github.com/serroba/window-limiter/internal/health"
	"github.com/serroba/window-limiter/internal/middleware"
	"github.com/serroba/window-limiter/internal/ratelimit"
	"go.uber.org/zap"
)

// LimiterConfig builds the limiter configuration from process options.
func LimiterConfig(opts *Options) (ratelimit.Config, error) {
	mode, err := ratelimit.ParseFailureMode(opts.OnStoreError)
	if err != nil {
		return ratelimit.Config{}, err
	}

	cfg := ratelimit.DefaultConfig()
	cfg.StoreTimeout = millis(opts.StoreTimeoutMs)
	cfg.MaxRetries = opts.MaxRetries
	cfg.Backoff = millis(opts.BackoffMs)
	cfg.OnStoreError = mode
	cfg.KeyPrefix = opts.KeyPrefix

	return cfg, cfg.Validate()
}

// Policies builds the per-scope policies protecting the service itself.
func Policies(opts *Options) (ratelimit.PolicySet, error) {
	read, err := policy("read", opts.ReadLimit, opts.ReadWindow)
	if err != nil {
		return ratelimit.PolicySet{}, err
	}

	write, err := policy("write", opts.WriteLimit, opts.WriteWindow)
	if err != nil {
		return ratelimit.PolicySet{}, err
	}

	return ratelimit.PolicySet{
		Default: write,
		Scopes: map[ratelimit.Scope]ratelimit.Policy{
			ratelimit.ScopeRead:  read,
			ratelimit.ScopeWrite: write,
		},
	}, nil
}

// policy rejects values that would wrap when narrowed to uint32.
func policy(scope string, limit, window int) (ratelimit.Policy, error) {
	if limit <= 0 || int64(limit) > math.MaxUint32 || window <= 0 || int64(window) > math.MaxUint32 {
		return ratelimit.Policy{}, fmt.Errorf("%w: %s limit %d per %ds", ratelimit.ErrInvalidPolicy, scope, limit, window)
	}

	return ratelimit.Policy{MaxRequests: uint32(limit), WindowSeconds: uint32(window)}, nil
}

func RateLimitPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*ratelimit.Limiter, error) {
		opts := do.MustInvoke[*Options](i)
		backend := do.MustInvoke[*StoreBackend](i)
		clk := do.MustInvoke[clock.Clock](i)
		instance := do.MustInvoke[InstanceID](i)
		logger := do.MustInvoke[*zap.Logger](i).With(zap.String("instance", string(instance)))

		cfg, err := LimiterConfig(opts)
		if err != nil {
			return nil, err
		}

		var limiterOpts []ratelimit.Option
		if opts.Alerts {
			limiterOpts = append(limiterOpts, ratelimit.WithObserver(do.MustInvoke[*alerts.Notifier](i)))
		}

		return ratelimit.NewLimiter(backend.Store, clk, cfg, logger, limiterOpts...)
	})

	do.Provide(injector, func(i *do.Injector) (*ratelimit.PolicyLimiter, error) {
		opts := do.MustInvoke[*Options](i)
		limiter := do.MustInvoke[*ratelimit.Limiter](i)

		policies, err := Policies(opts)
		if err != nil {
			return nil, err
		}

		return ratelimit.NewPolicyLimiter(limiter, policies)
	})
}

func HTTPPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(injector, func(i *do.Injector) (huma.API, error) {
		router := do.MustInvoke[*chi.Mux](i)
		logger := do.MustInvoke[*zap.Logger](i)
		backend := do.MustInvoke[*StoreBackend](i)
		limiter := do.MustInvoke[*ratelimit.Limiter](i)
		policyLimiter := do.MustInvoke[*ratelimit.PolicyLimiter](i)

		api := humachi.New(router, huma.DefaultConfig("Window Limiter", "1.0.0"))
		api.UseMiddleware(
			middleware.AccessLog(logger),
			middleware.RateLimiter(api, policyLimiter, ratelimit.NewOperationScopeResolver(), logger),
		)

		handlers.RegisterRoutes(api, handlers.NewDecisionHandler(limiter, logger))
		health.RegisterRoutes(api, health.NewHandler(backend.Name, backend.Checker, limiter))

		return api, nil
	})
}
