package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campussnap/config"
	"campussnap/database"
	"campussnap/handlers"
	"campussnap/media"
	"campussnap/middleware"
	"campussnap/notify"
	"campussnap/routes"
	"campussnap/store"
	"campussnap/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	log.Println("🚀 Starting CampusSnap API...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("❌ Invalid configuration: ", err)
	}

	// ===== STORE =====
	var (
		st store.Store
		db *mongo.Database
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Println("⚠️  Using in-memory store, data is lost on restart")
		st = store.NewMemory()
	default:
		log.Println("🔌 Connecting to MongoDB...")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		db, err = database.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			cancel()
			log.Fatal("❌ Failed to connect to MongoDB: ", err)
		}
		m := store.NewMongo(db, cfg.MongoTransactions)
		if err := m.EnsureIndexes(ctx); err != nil {
			cancel()
			log.Fatal("❌ Failed to create indexes: ", err)
		}
		cancel()
		st = m
	}

	// ===== MEDIA =====
	var uploader media.Uploader
	if cfg.CloudinaryURL != "" {
		cld, err := media.NewCloudinary(cfg.CloudinaryURL)
		if err != nil {
			log.Fatal("❌ Cloudinary configuration error: ", err)
		}
		uploader = cld
	} else {
		log.Println("⚠️  CLOUDINARY_URL not set, media is kept in memory")
		uploader = media.NewMemory()
	}

	// ===== NOTIFICATIONS =====
	hub := websocket.NewManager(cfg.CORSOrigins)
	notifiers := notify.Multi{hub}
	if cfg.PushEnabled() {
		notifiers = append(notifiers, notify.NewPush(st, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject))
		log.Println("✅ Web push enabled")
	}

	// ===== GIN MODE =====
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
		log.Println("⚙️ Running in RELEASE mode")
	} else {
		gin.SetMode(gin.DebugMode)
		log.Println("⚙️ Running in DEBUG mode")
	}

	// ===== ROUTER =====
	tokens := middleware.NewTokens(cfg.JWTSecret)
	h := handlers.New(handlers.Options{
		Store:          st,
		Media:          uploader,
		Notifier:       notifiers,
		Tokens:         tokens,
		Hub:            hub,
		Production:     cfg.Production(),
		VAPIDPublicKey: pushKey(cfg),
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	limiter := middleware.NewIPRateLimiter(float64(cfg.RateLimitRPS), cfg.RateLimitBurst)
	stopSweep := make(chan struct{})
	go limiter.Run(stopSweep)

	router := routes.SetupRouter(h, routes.Deps{
		Tokens:      tokens,
		Users:       st,
		Limiter:     limiter,
		Registry:    reg,
		CORSOrigins: cfg.CORSOrigins,
	})

	// ===== SERVER CONFIG =====
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Server running on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("❌ Server error: ", err)
		}
	}()

	// ===== GRACEFUL SHUTDOWN =====
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println("❌ Forced shutdown:", err)
	}
	close(stopSweep)
	hub.Close()
	if err := database.Disconnect(db); err != nil {
		log.Println("❌ MongoDB disconnect:", err)
	}

	log.Println("👋 Server stopped gracefully")
}

// pushKey is the key handed to browsers, empty when push is off.
func pushKey(cfg *config.Config) string {
	if !cfg.PushEnabled() {
		return ""
	}
	return cfg.VAPIDPublicKey
}
