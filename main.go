package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"savquestAPI/handlers"
	"savquestAPI/internal/contentmodel"
	"savquestAPI/internal/notification"
	"savquestAPI/middleware"
	"savquestAPI/services"

	_ "net/http/pprof"
)

var (
	dbPool              *pgxpool.Pool
	userService         *services.UserService
	transactionService  *services.TransactionService
	goalService         *services.GoalService
	rewardsService      *services.RewardsService
	challengeService    *services.ChallengeService
	analyticsService    *services.AnalyticsService
	notificationService *services.NotificationService
	fcmService          *notification.FCMService
	chatManager         *services.ChatManager
	scheduler           *services.EvaluationScheduler
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to Postgres")

	notificationService = services.NewNotificationService(dbPool)
	userService = services.NewUserService(dbPool)
	transactionService = services.NewTransactionService(dbPool)
	goalService = services.NewGoalService(dbPool)
	rewardsService = services.NewRewardsService(dbPool)
	analyticsService = services.NewAnalyticsService(dbPool)
	chatManager = services.NewChatManager(dbPool)

	// The challenge engine: Postgres store, points ledger, the transaction
	// feed, goals and reference income, plus the draft generator.
	var model services.ContentModel
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		model = contentmodel.NewClient(apiKey)
		log.Println("Content model configured for challenge generation")
	} else {
		log.Println("OPENAI_API_KEY not set, challenge generation uses templates only")
	}
	generator := services.NewChallengeGenerator(model)

	challengeService = services.NewChallengeService(
		services.NewPostgresChallengeRepository(dbPool),
		rewardsService,
		transactionService,
		goalService,
		userService,
		generator,
	)
	challengeService.SetNotifier(notificationService)
	transactionService.SetChallengeService(challengeService)
	goalService.SetChallengeService(challengeService)

	fcmService, err = notification.NewFCMService("./serviceAccountKey.json")
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
	} else {
		notificationService.SetPushProvider(fcmService)
		log.Println("FCM Push Provider initialized successfully")
	}

	scheduler = services.NewEvaluationScheduler(challengeService, 15*time.Minute)

	middleware.InitPrometheus()
	services.InitMetrics()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	userHandler := handlers.NewUserHandler(userService)
	transactionHandler := handlers.NewTransactionHandler(transactionService)
	goalHandler := handlers.NewGoalHandler(goalService)
	challengeHandler := handlers.NewChallengeHandler(challengeService, userService)
	rewardsHandler := handlers.NewRewardsHandler(rewardsService, userService)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService, userService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	webhookHandler := handlers.NewWebhookHandler(userService)
	chatHandler := handlers.NewChatHandler(chatManager)

	r := mux.NewRouter()

	// Websocket route stays outside the rate limiter; long-lived connections
	// are not request traffic.
	r.HandleFunc("/api/v1/chat/ws/{roomID}", chatHandler.JoinRoom)

	standardRouter := r.PathPrefix("/").Subrouter()

	go middleware.CleanupVisitors()

	standardRouter.Use(middleware.RateLimitMiddleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	standardRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "savquest-api"}`))
	}).Methods("GET")

	standardRouter.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")

	// -------------------------------------------------------------------------
	// API V1 SUBROUTER
	// -------------------------------------------------------------------------
	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/chat/public", chatHandler.GetPublicRooms).Methods("GET")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/user", userHandler.GetProfile).Methods("GET")
	protected.HandleFunc("/user/update-profile", userHandler.UpdateProfile).Methods("PUT")
	protected.HandleFunc("/user/delete-account", userHandler.DeleteAccount).Methods("DELETE")

	protected.HandleFunc("/transactions", transactionHandler.RecordTransaction).Methods("POST")
	protected.HandleFunc("/transactions", transactionHandler.ListTransactions).Methods("GET")

	protected.HandleFunc("/goals", goalHandler.CreateGoal).Methods("POST")
	protected.HandleFunc("/goals", goalHandler.ListGoals).Methods("GET")
	protected.HandleFunc("/goals/{goalId}/contribute", goalHandler.Contribute).Methods("POST")

	protected.HandleFunc("/challenges", challengeHandler.ListChallenges).Methods("GET")
	protected.HandleFunc("/challenges", challengeHandler.CreateChallenge).Methods("POST")
	protected.HandleFunc("/challenges/generate", challengeHandler.GenerateChallenges).Methods("POST")
	protected.HandleFunc("/challenges/evaluate", challengeHandler.Evaluate).Methods("POST")
	protected.HandleFunc("/challenges/stats", challengeHandler.GetStats).Methods("GET")
	protected.HandleFunc("/challenges/{id}", challengeHandler.GetChallenge).Methods("GET")

	protected.HandleFunc("/rewards/ledger", rewardsHandler.GetLedger).Methods("GET")
	protected.HandleFunc("/rewards/catalog", rewardsHandler.GetCatalog).Methods("GET")
	protected.HandleFunc("/rewards/redeem", rewardsHandler.RedeemItem).Methods("POST")

	protected.HandleFunc("/analytics/monthly", analyticsHandler.GetMonthlySummaries).Methods("GET")
	protected.HandleFunc("/analytics/savings-rate", analyticsHandler.GetSavingsRate).Methods("GET")
	protected.HandleFunc("/analytics/stats", analyticsHandler.GetUserStats).Methods("GET")

	protected.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
	protected.HandleFunc("/notifications/unread-count", notificationHandler.GetUnreadCount).Methods("GET")
	protected.HandleFunc("/notifications/{id}/read", notificationHandler.MarkAsRead).Methods("PUT")
	protected.HandleFunc("/notifications/read-all", notificationHandler.MarkAllAsRead).Methods("PUT")
	protected.HandleFunc("/notifications/{id}", notificationHandler.DeleteNotification).Methods("DELETE")
	protected.HandleFunc("/notifications/preferences", notificationHandler.GetPreferences).Methods("GET")
	protected.HandleFunc("/notifications/preferences", notificationHandler.UpdatePreferences).Methods("PUT")
	protected.HandleFunc("/notifications/register-device", notificationHandler.RegisterDevice).Methods("POST")

	protected.HandleFunc("/chat/create", chatHandler.CreateRoom).Methods("POST")
	protected.HandleFunc("/chat/{roomID}/history", chatHandler.GetHistory).Methods("GET")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	scheduler.Start()

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	scheduler.Stop()
	notificationService.Stop()

	log.Println("Server shutdown complete")
}
