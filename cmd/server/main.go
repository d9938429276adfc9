package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/clubmember/clubmember/internal/config"
	"github.com/clubmember/clubmember/internal/handlers"
	"github.com/clubmember/clubmember/internal/middleware"
	"github.com/clubmember/clubmember/internal/notify"
	"github.com/clubmember/clubmember/internal/ratelimit"
	"github.com/clubmember/clubmember/internal/repository"
	"github.com/clubmember/clubmember/internal/service"
	"github.com/clubmember/clubmember/internal/sms"
	"github.com/clubmember/clubmember/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	ephemeral, err := initStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize ephemeral store")
	}

	dynamoClient, err := initDynamoDB(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize DynamoDB")
	}

	members := repository.NewMemberRepository(dynamoClient, cfg.DynamoDB.TableName, logger)

	jwtService, err := service.NewJWTService(&cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize JWT service")
	}

	limiter := ratelimit.New(ephemeral, cfg.OTP.MaxAttempts, cfg.OTP.RateWindow, logger)
	tokens := service.NewVerificationTokenService(ephemeral, cfg.OTP.TokenExpiry, cfg.OTP.TokenSingleUse, logger)
	smsClient := sms.NewClient(&cfg.SMS, logger)
	otpService := service.NewOTPService(ephemeral, smsClient, limiter, tokens, &cfg.OTP, logger)
	sessionService := service.NewSessionService(ephemeral, logger)

	notifier := notify.NewConsentNotifier(
		&notify.LogMailer{Logger: logger},
		ephemeral,
		cfg.Notify.Enabled,
		cfg.Notify.AdminEmail,
		logger,
	)

	otpHandlers := handlers.NewOTPHandlers(otpService, members, logger)
	authHandlers := handlers.NewAuthHandlers(otpService, jwtService, sessionService, members, notifier, logger)
	accountHandlers := handlers.NewAccountHandlers(otpService, jwtService, sessionService, members, notifier, logger)

	authMiddleware := middleware.NewAuthMiddleware(jwtService, logger)
	router := setupRouter(otpHandlers, authHandlers, accountHandlers, authMiddleware, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initStore(cfg *config.Config, logger *logrus.Logger) (store.Store, error) {
	if cfg.Store.Backend == "memory" {
		logger.Warn("Using in-memory ephemeral store; verification state will not survive restarts")
		return store.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.Endpoint,
		Password: cfg.Store.Password,
		DB:       cfg.Store.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis client initialized")
	return store.NewRedisStore(client, logger), nil
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO())
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}

func setupRouter(
	otpHandlers *handlers.OTPHandlers,
	authHandlers *handlers.AuthHandlers,
	accountHandlers *handlers.AccountHandlers,
	authMiddleware *middleware.AuthMiddleware,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	api := router.PathPrefix("/api/v1").Subrouter()

	otp := api.PathPrefix("/otp").Subrouter()
	otp.HandleFunc("/send", otpHandlers.SendOTP).Methods("POST", "OPTIONS")
	otp.Handle("/verify",
		authMiddleware.OptionalAuth(http.HandlerFunc(otpHandlers.VerifyOTP))).Methods("POST", "OPTIONS")
	otp.HandleFunc("/check", otpHandlers.CheckVerification).Methods("POST", "OPTIONS")

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", authHandlers.Register).Methods("POST", "OPTIONS")
	auth.HandleFunc("/login", authHandlers.Login).Methods("POST", "OPTIONS")
	auth.HandleFunc("/refresh", authHandlers.Refresh).Methods("POST", "OPTIONS")
	auth.Handle("/logout", authMiddleware.RequireAuth(http.HandlerFunc(authHandlers.Logout))).Methods("POST", "OPTIONS")

	api.Handle("/checkout/confirm",
		authMiddleware.OptionalAuth(http.HandlerFunc(accountHandlers.ConfirmCheckout))).Methods("POST", "OPTIONS")

	account := api.PathPrefix("/account").Subrouter()
	account.Use(authMiddleware.RequireAuth)
	account.HandleFunc("/phone", accountHandlers.UpdatePhone).Methods("PUT", "OPTIONS")
	account.HandleFunc("/consent", accountHandlers.UpdateConsent).Methods("PUT", "OPTIONS")

	return router
}
