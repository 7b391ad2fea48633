package main

import (
	// Go Internal Packages
	"context"
	stderrors "errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Local Packages
	"github.com/markjakearzadon/momopay-gobackend/internal/cache"
	"github.com/markjakearzadon/momopay-gobackend/internal/config"
	"github.com/markjakearzadon/momopay-gobackend/internal/db"
	"github.com/markjakearzadon/momopay-gobackend/internal/events"
	"github.com/markjakearzadon/momopay-gobackend/internal/handlers"
	"github.com/markjakearzadon/momopay-gobackend/internal/services"

	// External Packages
	"github.com/alecthomas/kingpin/v2"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/jsternberg/zap-logfmt"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
)

func newLogger(level, service string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "logfmt"
	_ = cfg.Level.UnmarshalText([]byte(level))
	cfg.InitialFields = make(map[string]any)
	cfg.InitialFields["host"], _ = os.Hostname()
	cfg.InitialFields["service"] = service
	cfg.OutputPaths = []string{"stdout"}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("cannot build logger: %v", err)
	}
	return logger
}

func main() {
	// Load .env
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Error loading .env: %s", err)
	}

	configPath := kingpin.Flag("config", "Path to the application config file").Short('c').Default("config.yml").String()
	kingpin.Parse()

	appKonf, k, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	// Update and Validate config before starting the server
	appKonf = config.LoadSecrets(appKonf)
	if err = appKonf.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if !appKonf.IsProdMode {
		k.Print()
	}

	logger := newLogger(appKonf.Logger.Level, appKonf.Application)
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		txStore  services.TransactionStore
		payStore services.PaymentRecordStore
	)
	switch appKonf.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, transactions are lost on restart")
		mem := db.NewMemoryStore()
		txStore, payStore = mem, mem
	default:
		mongoClient, err := db.Connect(ctx, appKonf.Mongo.URI)
		if err != nil {
			logger.Fatal("cannot create mongo client", zap.Error(err))
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := mongoClient.Disconnect(dctx); err != nil {
				logger.Warn("error disconnecting from mongo", zap.Error(err))
			}
		}()

		database := mongoClient.Database(appKonf.Mongo.Database)
		transactions := db.NewTransactionStore(database)
		if err := transactions.EnsureIndexes(ctx); err != nil {
			logger.Fatal("cannot create transaction indexes", zap.Error(err))
		}
		txStore, payStore = transactions, db.NewPaymentStore(database)
		logger.Info("connected to mongo", zap.String("database", appKonf.Mongo.Database))
	}

	momoClient := services.NewMomoClient(appKonf.Gateway, logger)
	tokens := services.NewTokenCache(momoClient, appKonf.Gateway.TokenMargin, logger)

	if appKonf.Redis.Enabled {
		redisClient, err := cache.Connect(ctx, appKonf.Redis.URI, appKonf.Redis.Password)
		if err != nil {
			logger.Fatal("cannot create redis client", zap.Error(err))
		}
		defer redisClient.Close()
		tokens.WithSharedStore(cache.NewRedisTokenStore(redisClient, appKonf.Redis.TokenKey, logger))
	}

	paymentService := services.NewPaymentService(txStore, payStore, momoClient, tokens, services.PaymentOptions{
		MaxAttempts:    appKonf.Payment.MaxAttempts,
		RetryBackoff:   appKonf.Payment.RetryBackoff,
		CallbackURL:    appKonf.Gateway.CallbackURL(),
		PayerMessage:   appKonf.Payment.PayerMessage,
		PayeeNote:      appKonf.Payment.PayeeNote,
		PublishTimeout: appKonf.Kafka.PublishTimeout,
	}, logger)

	router := mux.NewRouter()

	if appKonf.Kafka.Enabled {
		metrics := kprom.NewMetrics("momopay")
		publisher, err := events.NewStatusPublisher(events.PublisherConfig{
			Brokers:         appKonf.Kafka.Brokers,
			Topic:           appKonf.Kafka.Topic,
			DeliveryTimeout: appKonf.Kafka.PublishTimeout,
		}, metrics, logger)
		if err != nil {
			logger.Fatal("cannot create status publisher", zap.Error(err))
		}
		defer publisher.Close()
		paymentService.WithPublisher(publisher)
		router.Handle("/metrics", publisher.MetricsHandler()).Methods("GET")
	}

	if appKonf.Reconciler.Enabled {
		reconciler := services.NewReconciler(paymentService, txStore, appKonf.Reconciler, logger)
		go reconciler.Run(ctx)
	}

	paymentHandler := handlers.NewPaymentHandler(paymentService, appKonf.Callback.Token, logger)
	handlers.Register(router, paymentHandler)

	server := &http.Server{
		Addr:         "0.0.0.0:" + appKonf.HTTP.Port,
		Handler:      router,
		ReadTimeout:  appKonf.HTTP.ReadTimeout,
		WriteTimeout: appKonf.HTTP.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("server running", zap.String("port", appKonf.HTTP.Port), zap.String("store", appKonf.Store.Driver))
	if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
