package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/imrishuroy/leadflow/internal/actor"
	"github.com/imrishuroy/leadflow/internal/app"
	"github.com/imrishuroy/leadflow/internal/config"
	"github.com/imrishuroy/leadflow/internal/fulfillment"
	"github.com/imrishuroy/leadflow/internal/handlers"
	"github.com/imrishuroy/leadflow/internal/logging"
	"github.com/imrishuroy/leadflow/internal/payments"
	"github.com/imrishuroy/leadflow/internal/ratelimit"
	"github.com/imrishuroy/leadflow/internal/telemetry"
)

func setupRouter(cfg config.Config, hc handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(handlers.RequestID())
	r.Use(handlers.CORS(cfg.CORSAllowedOrigins))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(telemetry.Handler()))

	handlers.RegisterRoutes(r, hc)

	return r
}

func main() {
	logging.InitLogger("leadflow-api")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Logger.WithError(err).Fatal("invalid configuration")
	}
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	deps, err := app.Build(context.Background(), cfg)
	if err != nil {
		logging.Logger.WithError(err).Fatal("failed to init dependencies")
	}

	trigger := actor.NewClient(cfg.ActorAPIURL, cfg.ActorID, cfg.ActorToken, cfg.ActorTimeout)
	orchestrator := fulfillment.New(deps.Orders, deps.Ledger, trigger, deps.Notifier(cfg), deps.Recorder(), fulfillment.Options{
		TriggerTimeout: cfg.ActorTimeout,
		NotifyTimeout:  cfg.NotifyTimeout,
		FileNameLength: cfg.FileNameLength,
	})

	hc := handlers.HandlerConfig{
		Config:    cfg,
		Orders:    deps.Orders,
		Checkout:  payments.NewStripeCheckout(cfg.StripeSecretKey),
		Verifier:  payments.NewVerifier(cfg.StripeWebhookSecret),
		Processor: orchestrator,
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		bucket := ratelimit.NewTokenBucket(rdb, cfg.RateLimitCapacity, cfg.RateLimitRefill)
		hc.CheckoutLimiter = ratelimit.Middleware(bucket, "checkout")
	}

	r := setupRouter(cfg, hc)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		logging.Logger.Infof("running local server on %s (store=%s)", cfg.HTTPAddr, cfg.StoreBackend)
		if err := r.Run(cfg.HTTPAddr); err != nil {
			logging.Logger.WithError(err).Fatal("failed to run local server")
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
