// cmd/api/main.go
// Main entry point for the application
// This file bootstraps all components and starts the server

package main

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/attachments"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/auth"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/chat"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/common/database"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/common/utils"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/config"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/notifications"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/presence"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	log.Println("========================================")
	log.Println("🚀 Starting Project-H Chat Backend")
	log.Println("========================================")

	// 1. Load environment variables
	log.Println("📁 Step 1: Loading .env file...")
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  Warning: No .env file found (%v), using environment variables", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// 2. Load and validate configuration
	log.Println("📋 Step 2: Loading configuration...")
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("❌ Configuration validation failed: ", err)
	}
	log.Println("✅ Configuration loaded and valid")

	// 3. Connect to PostgreSQL
	log.Println("🗄️  Step 3: Connecting to PostgreSQL...")
	db, err := database.NewPostgresDBFromURL(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("❌ Failed to connect to PostgreSQL: ", err)
	}
	defer db.Close()
	log.Println("✅ Connected to PostgreSQL")

	// 4. Connect to Redis. Presence status and privacy live here, so this
	// is not optional.
	log.Println("📮 Step 4: Connecting to Redis...")
	redisClient, err := database.NewRedisClientFromURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("❌ Failed to connect to Redis: ", err)
	}
	defer redisClient.Close()
	log.Println("✅ Connected to Redis")

	// 5. Run database migrations
	log.Println("🔨 Step 5: Running database migrations...")
	if err := runMigrations(db); err != nil {
		log.Fatal("❌ Failed to run migrations: ", err)
	}
	log.Println("✅ Database migrations completed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6. Auth
	log.Println("🔐 Step 6: Initializing auth...")
	authService := auth.NewService(&auth.Config{JWTSecret: cfg.JWTSecret})
	authMiddleware := auth.NewMiddleware(authService)
	log.Println("✅ Auth initialized")

	// 7. Notifications
	log.Println("🔔 Step 7: Initializing notifications...")
	notifRepo := notifications.NewPostgresRepository(db)

	var pushService notifications.PushService
	if cfg.EnablePushNotifications {
		pushService, err = notifications.NewFCMPushService(ctx, cfg.FCMCredentialsFile, notifRepo)
		if err != nil {
			log.Printf("⚠️  FCM initialization failed (%v), falling back to mock push", err)
			pushService = notifications.NewMockPushService()
		} else {
			log.Println("   ✅ Using FCM for push delivery")
		}
	} else {
		pushService = notifications.NewMockPushService()
		log.Println("   ✅ Using mock push delivery")
	}

	notifService := notifications.NewService(notifRepo, pushService, cfg.NotificationRetention)
	notifHandler := notifications.NewHandler(notifService)

	cleanupJob := notifications.NewCleanupJob(notifService, cfg.NotificationCleanupEvery)
	go cleanupJob.Start(ctx)
	log.Println("✅ Notifications initialized")

	// 8. Presence
	log.Println("👥 Step 8: Initializing presence...")
	registry := presence.NewRegistry()
	statusStore := presence.NewStatusStore(redisClient)
	typingAggregator := presence.NewTypingAggregator()
	log.Println("✅ Presence initialized")

	// 9. Chat core and hub
	log.Println("💬 Step 9: Initializing chat...")
	chatRepo := chat.NewPostgresRepository(db)
	chatService := chat.NewService(chatRepo, notifService)

	hub := chat.NewHub(chatService, notifService, registry, statusStore, typingAggregator)
	go hub.Run(ctx)

	chatHandler := chat.NewHandler(chatService, hub, authService, cfg.WSAllowedOrigins)
	log.Println("✅ Chat initialized")

	// 10. Attachment storage
	log.Println("📎 Step 10: Initializing attachment storage...")
	var storage attachments.StorageService
	if cfg.UseS3 {
		awsSession, err := session.NewSession(&aws.Config{
			Region:      aws.String(cfg.AWSRegion),
			Credentials: credentials.NewStaticCredentials(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		})
		if err != nil {
			log.Fatal("❌ Failed to create AWS session: ", err)
		}
		storage = attachments.NewS3Storage(awsSession, cfg.S3Bucket, cfg.MaxAttachmentSize)
		log.Println("   ✅ Using S3 for attachments")
	} else {
		storage, err = attachments.NewLocalStorage("./uploads", cfg.BaseURL, cfg.MaxAttachmentSize)
		if err != nil {
			log.Fatal("❌ Failed to create local storage: ", err)
		}
		log.Println("   ✅ Using local disk for attachments")
	}
	attachmentHandler := attachments.NewHandler(storage, cfg.MaxAttachmentSize)
	log.Println("✅ Attachment storage initialized")

	// 11. Routes
	log.Println("🛣️  Step 11: Setting up routes...")
	router := mux.NewRouter()
	router.Use(loggingMiddleware)
	router.Use(corsMiddleware)

	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	chat.RegisterRoutes(router, chatHandler, authMiddleware)
	notifications.RegisterRoutes(router, notifHandler, authMiddleware)
	attachments.RegisterRoutes(router, attachmentHandler, authMiddleware)

	if !cfg.UseS3 {
		router.PathPrefix("/uploads/").Handler(
			http.StripPrefix("/uploads/", http.FileServer(http.Dir("./uploads"))))
	}
	log.Println("✅ Routes configured")

	// 12. Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Server listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("❌ Server failed: ", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("⚠️  Shutdown signal received...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server shutdown error: %v", err)
	}
	log.Println("✅ Server stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	utils.SuccessResponse(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	}, http.StatusOK)
}

// loggingMiddleware logs each request with its status and duration
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Printf("%s %s %d %v", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so the websocket upgrade works behind the logger
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
