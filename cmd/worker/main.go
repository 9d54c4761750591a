package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/cabinbooking/config"
	"github.com/Domenick1991/cabinbooking/internal/email"
	"github.com/Domenick1991/cabinbooking/internal/kafka"
	"github.com/Domenick1991/cabinbooking/internal/repository"
	"github.com/Domenick1991/cabinbooking/internal/service/reservation"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	bookingRepo := repository.NewBookingRepository(pool)
	reservationService := reservation.NewService(
		bookingRepo,
		nil,
		nil,
		reservation.WithEvents(producer, cfg.Kafka.ReservationEventsTopic),
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	emailSender := email.NewSender()

	go func() {
		if err := consumer.ConsumeConfirmations(ctx, func(ctx context.Context, payload kafka.ConfirmationPayload) error {
			if err := emailSender.Send(ctx, payload); err != nil {
				// Undeliverable confirmations are logged and skipped.
				log.Printf("ERROR: send confirmation for booking %s: %v", payload.BookingID, err)
			}
			return nil
		}); err != nil {
			log.Printf("consumer stopped: %v", err)
		}
	}()

	staleAfter := time.Duration(cfg.Worker.StalePendingMinutes) * time.Minute
	sweepTicker := time.NewTicker(time.Duration(cfg.Worker.StaleSweepMinutes) * time.Minute)
	defer sweepTicker.Stop()

	for {
		select {
		case <-sweepTicker.C:
			n, err := reservationService.FlagStalePending(ctx, staleAfter)
			if err != nil {
				log.Printf("stale pending sweep error: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("flagged %d stale pending bookings", n)
			}
		case <-ctx.Done():
			log.Printf("shutting down worker")
			return
		}
	}
}
