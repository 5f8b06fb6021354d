package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/starksgalaxy/errands-gobackend/internal/config"
	"github.com/starksgalaxy/errands-gobackend/internal/db"
	"github.com/starksgalaxy/errands-gobackend/internal/events"
	"github.com/starksgalaxy/errands-gobackend/internal/handlers"
	"github.com/starksgalaxy/errands-gobackend/internal/repository"
	"github.com/starksgalaxy/errands-gobackend/internal/services"
	"github.com/starksgalaxy/errands-gobackend/internal/tuma"
)

func main() {
	// Load .env
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Error loading .env: %s", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to MongoDB
	client, err := db.Connect(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()
	log.Println("Successfully connected to MongoDB")

	store := repository.NewMongo(client, cfg.MongoDatabase)
	if err := store.EnsureIndexes(ctx); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	// Domain event bus, optionally bridged to RabbitMQ.
	bus := events.NewBus()
	defer bus.Close()

	var amqpPub *events.AMQPPublisher
	if cfg.AMQPURL != "" {
		amqpPub, err = events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer amqpPub.Close()
	}

	// Initialize services and handlers
	gateway := tuma.New(cfg.TumaBaseURL, cfg.TumaEmail, cfg.TumaAPIKey)

	userService := services.NewUserService(store, cfg.JWTSecret, cfg.TokenTTL)
	errandService := services.NewErrandService(store, bus)
	paymentService := services.NewPaymentService(store, gateway, bus, cfg.CallbackURL(), cfg.PollInterval, cfg.PollAttempts)
	disputeService := services.NewDisputeService(store, bus)

	userHandler := handlers.NewUserHandler(userService)
	errandHandler := handlers.NewErrandHandler(errandService, disputeService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)

	// Set up router
	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "HEAD")

	router.HandleFunc("/api/register", userHandler.Register).Methods("POST")
	router.HandleFunc("/api/login", userHandler.Login).Methods("POST")
	router.HandleFunc("/api/payment/callback", paymentHandler.Callback).Methods("POST")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(handlers.AuthMiddleware(cfg.JWTSecret))

	api.HandleFunc("/errand", errandHandler.Create).Methods("POST")
	api.HandleFunc("/errands", errandHandler.ListMine).Methods("GET")
	api.HandleFunc("/errand/{errandID}", errandHandler.Get).Methods("GET")
	api.HandleFunc("/errand/{errandID}/bid", errandHandler.SubmitBid).Methods("POST")
	api.HandleFunc("/errand/{errandID}/bids", errandHandler.ListBids).Methods("GET")
	api.HandleFunc("/errand/{errandID}/bid/reject", errandHandler.RejectBid).Methods("POST")
	api.HandleFunc("/errand/{errandID}/start", errandHandler.Start).Methods("POST")
	api.HandleFunc("/errand/{errandID}/request-completion", errandHandler.RequestCompletion).Methods("POST")
	api.HandleFunc("/errand/{errandID}/approve", errandHandler.Approve).Methods("POST")
	api.HandleFunc("/errand/{errandID}/dispute", errandHandler.Dispute).Methods("POST")

	api.HandleFunc("/errand/{errandID}/payment", paymentHandler.InitiateBidPayment).Methods("POST")
	api.HandleFunc("/payment/{paymentID}", paymentHandler.CheckPaymentStatus).Methods("GET")
	api.HandleFunc("/payments", paymentHandler.GetPaymentHistory).Methods("GET")

	api.HandleFunc("/wallet", userHandler.Wallet).Methods("GET")
	api.HandleFunc("/wallet/topup", userHandler.TopUpWallet).Methods("POST")

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Server running on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if amqpPub != nil {
		sub := bus.Subscribe(64)
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case ev, ok := <-sub:
					if !ok {
						return nil
					}
					if err := amqpPub.Publish(gctx, ev); err != nil {
						log.Printf("Failed to publish event %s: %v", ev.Type, err)
					}
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
