package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletcore/internal/auth"
	"github.com/congo-pay/walletcore/internal/config"
	"github.com/congo-pay/walletcore/internal/fees"
	"github.com/congo-pay/walletcore/internal/funding"
	"github.com/congo-pay/walletcore/internal/gateway"
	"github.com/congo-pay/walletcore/internal/identity"
	"github.com/congo-pay/walletcore/internal/investment"
	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/metrics"
	"github.com/congo-pay/walletcore/internal/middleware"
	"github.com/congo-pay/walletcore/internal/notification"
	"github.com/congo-pay/walletcore/internal/otp"
	"github.com/congo-pay/walletcore/internal/payments"
	"github.com/congo-pay/walletcore/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache may be
// nil in development, where in-memory backends take their place.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Registry *prometheus.Registry
}

// Services holds the wired domain services.
type Services struct {
	Identity    *identity.Service
	Auth        *auth.Service
	Wallet      *wallet.Service
	OTP         *otp.Gate
	Funding     *funding.Service
	Payments    *payments.Service
	Investments *investment.Service
	Dispatcher  *notification.Dispatcher
}

// Build constructs every service over the configured backends.
func Build(ctx context.Context, d Deps) (*Services, error) {
	if !d.Cfg.IsDevelopment() {
		if d.Cfg.GatewayBaseURL == "" {
			return nil, fmt.Errorf("payment gateway is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	var m *metrics.Metrics
	if d.Registry != nil {
		m = metrics.New("walletcore", d.Registry)
	}
	dispatcher := notification.NewDispatcher(notification.NewLoggerNotifier(d.Logger), d.Logger, m)

	feeCfg := fees.DefaultConfig()
	products := investment.DefaultProducts()
	if d.Cfg.PricingFile != "" {
		var err error
		if feeCfg, err = fees.LoadFile(d.Cfg.PricingFile, feeCfg); err != nil {
			return nil, err
		}
		loaded, err := investment.LoadProducts(d.Cfg.PricingFile)
		if err != nil {
			return nil, err
		}
		if loaded != nil {
			products = loaded
		}
	}

	var (
		backend  ledger.Backend
		users    identity.Repository
		catalog  investment.Catalog
		otpStore otp.Store
	)
	if d.DB != nil {
		backend = ledger.NewPostgresBackend(d.DB)
		users = identity.NewPostgresRepository(d.DB)
		pg := investment.NewPostgresCatalog(d.DB)
		for _, p := range products {
			if err := pg.Upsert(ctx, p); err != nil {
				return nil, fmt.Errorf("seed product %s: %w", p.ID, err)
			}
		}
		catalog = pg
	} else {
		backend = ledger.NewMemoryBackend()
		users = identity.NewMemoryRepository()
		catalog = investment.NewMemoryCatalog(products...)
	}
	if d.Cache != nil {
		otpStore = otp.NewRedisStore(d.Cache)
	} else {
		otpStore = otp.NewMemoryStore()
	}

	var gw gateway.Gateway
	if d.Cfg.GatewayBaseURL != "" {
		client := gateway.NewClient(d.Cfg.GatewayBaseURL, d.Cfg.GatewaySecretKey, d.Cfg.GatewayTimeout)
		gw = gateway.NewResilient(client, d.Cfg.GatewayTimeout, gateway.DefaultBreakerConfig(), d.Logger, m)
	} else if d.Cfg.IsDevelopment() {
		d.Logger.Warn("GATEWAY_BASE_URL not set, using the payment gateway simulator")
		gw = gateway.NewSimulator(true)
	} else {
		return nil, fmt.Errorf("payment gateway is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	l := ledger.New(backend, ledger.WithMetrics(m))
	gate := otp.NewGate(otpStore, otp.Config{
		TTL:            d.Cfg.OTPTTL,
		ResendCooldown: d.Cfg.OTPResendCooldown,
		CodeLength:     d.Cfg.OTPCodeLength,
		BypassCode:     d.Cfg.OTPBypassCode,
		Production:     d.Cfg.IsProduction(),
	}, dispatcher, d.Logger, otp.WithMetrics(m))
	currency := d.Cfg.Currency

	return &Services{
		Identity:    identity.NewService(users),
		Auth:        auth.NewService(d.Cfg, users),
		Wallet:      wallet.NewService(l, currency),
		OTP:         gate,
		Funding:     funding.NewService(l, gw, currency, dispatcher, d.Logger, m),
		Payments:    payments.NewService(l, fees.NewPolicy(feeCfg), gate, users, dispatcher, currency, d.Logger),
		Investments: investment.NewService(l, catalog, gate, dispatcher, currency, d.Logger),
		Dispatcher:  dispatcher,
	}, nil
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps, s *Services) {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	identityHandler := identity.NewHandler(s.Identity, s.Wallet)
	fundingHandler := funding.NewHandler(s.Funding, d.Cfg.GatewayWebhookSecret, d.Cfg.WebhookTolerance, d.Logger)

	// Public routes
	RegisterIdentityRoutes(api, identityHandler)
	RegisterAuthRoutes(api, auth.NewHandler(s.Identity, s.Auth), middleware.RateLimit(d.Cache, "login", 5, middleware.ByPhone))
	RegisterWebhookRoutes(api, fundingHandler)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(s.Auth), middleware.Audit(d.Logger))
	idempotent := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)

	RegisterProfileRoutes(protected, identityHandler)
	RegisterOTPRoutes(protected, otp.NewHandler(s.OTP, d.Cfg.IsDevelopment()), middleware.RateLimit(d.Cache, "otp", 5, middleware.BySubject))
	RegisterWalletRoutes(protected, wallet.NewHandler(s.Wallet))
	RegisterFundingRoutes(protected, fundingHandler, idempotent)
	RegisterPaymentRoutes(protected, payments.NewHandler(s.Payments), idempotent)
	RegisterInvestmentRoutes(protected, investment.NewHandler(s.Investments), idempotent)
}
