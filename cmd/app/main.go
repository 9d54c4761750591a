package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/cabinbooking/api"
	"github.com/Domenick1991/cabinbooking/config"
	"github.com/Domenick1991/cabinbooking/internal/bootstrap"
	"github.com/Domenick1991/cabinbooking/internal/cache"
	"github.com/Domenick1991/cabinbooking/internal/credential"
	"github.com/Domenick1991/cabinbooking/internal/kafka"
	"github.com/Domenick1991/cabinbooking/internal/metrics"
	"github.com/Domenick1991/cabinbooking/internal/repository"
	"github.com/Domenick1991/cabinbooking/internal/service/listings"
	"github.com/Domenick1991/cabinbooking/internal/service/reservation"
	"github.com/Domenick1991/cabinbooking/internal/upstream"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.ValidateUpstream(); err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.AvailabilityCacheTTLDuration())
	defer redisCache.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	m := metrics.New()
	httpClient := &http.Client{Timeout: cfg.Upstream.RequestTimeout()}

	fetcher := upstream.NewOAuthFetcher(cfg.Upstream.TokenURL, cfg.Upstream.ClientID, cfg.Upstream.ClientSecret, cfg.Upstream.Scopes, httpClient)
	credentials := credential.NewManager(fetcher, redisCache,
		credential.WithBuffer(cfg.Upstream.TokenBuffer()),
		credential.WithTimeout(cfg.Upstream.TokenTimeout()),
		credential.WithMetrics(m),
	)

	client := upstream.NewClient(cfg.Upstream.BaseURL, credentials,
		upstream.WithHTTPClient(httpClient),
		upstream.WithMaxRetries(cfg.Upstream.MaxRetries),
		upstream.WithBackoffBase(cfg.Upstream.BackoffBase()),
		upstream.WithDefaultRetryAfter(cfg.Upstream.DefaultRetryAfter()),
		upstream.WithRateLimit(cfg.Upstream.RequestsPerSecond, cfg.Upstream.Burst),
		upstream.WithMetrics(m),
	)
	vendor := upstream.NewAPI(client)

	listingRepo := repository.NewListingRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)

	listingService := listings.NewService(listingRepo, vendor, redisCache)
	reservationService := reservation.NewService(
		bookingRepo,
		vendor,
		kafka.NewNotifier(producer, cfg.Kafka.NotificationsTopic),
		reservation.WithLocker(redisCache, cfg.Booking.IdempotencyLockTTL()),
		reservation.WithEvents(producer, cfg.Kafka.ReservationEventsTopic),
		reservation.WithSideEffectTimeout(cfg.Booking.SideEffectTimeout()),
		reservation.WithMetrics(m),
	)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.RouterConfig{
		Listings:     api.NewListingHandler(listingService),
		Reservations: api.NewReservationHandler(reservationService),
		Metrics:      m,
		SwaggerDir:   cfg.HTTP.SwaggerDir,
		Checks: map[string]api.HealthCheck{
			"postgres": pool.Ping,
			"redis":    redisCache.Ping,
			"kafka":    producer.CheckConnection,
		},
	})

	server := bootstrap.NewServer(cfg.HTTP, router, reservationService.Wait)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
