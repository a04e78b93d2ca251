package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config holds every setting the server reads from the environment.
type Config struct {
	Port        string
	Env         string
	GinMode     string
	CORSOrigins []string

	StoreDriver       string
	MongoURI          string
	MongoDB           string
	MongoTransactions bool

	JWTSecret     string
	CloudinaryURL string

	RateLimitRPS   int
	RateLimitBurst int

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] could not read .env: %v", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:              getenv("PORT", "8080"),
		Env:               getenv("APP_ENV", "development"),
		GinMode:           getenv("GIN_MODE", "debug"),
		CORSOrigins:       splitList(getenv("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		StoreDriver:       strings.ToLower(getenv("STORE_DRIVER", DriverMongo)),
		MongoURI:          os.Getenv("MONGODB_URI"),
		MongoDB:           getenv("MONGODB_DB", "campussnap"),
		MongoTransactions: getbool("MONGO_TRANSACTIONS", false),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		CloudinaryURL:     os.Getenv("CLOUDINARY_URL"),
		RateLimitRPS:      getint("RATE_LIMIT_RPS", 10),
		RateLimitBurst:    getint("RATE_LIMIT_BURST", 40),
		VAPIDPublicKey:    os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey:   os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubject:      getenv("VAPID_SUBJECT", "mailto:admin@campussnap.app"),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}
	switch cfg.StoreDriver {
	case DriverMongo:
		if cfg.MongoURI == "" {
			return nil, errors.New("MONGODB_URI must be set when STORE_DRIVER=mongo")
		}
	case DriverMemory:
	default:
		return nil, errors.New("STORE_DRIVER must be mongo or memory")
	}
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		return nil, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return cfg, nil
}

// Production reports whether cookies must be marked Secure / SameSite=None.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// PushEnabled reports whether both VAPID keys are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] %s=%q is not a number, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getbool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] %s=%q is not a bool, using %t", key, v, fallback)
		return fallback
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
