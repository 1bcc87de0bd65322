package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	CRDBDSN      string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	ListenAddr   string
	OTLPEndpoint string

	MaxHoldSeconds                int
	MaxHoldsPerUserPerEvent       int
	OneReservationPerUserPerEvent bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	maxHoldSeconds := envInt("MAX_HOLD_SECONDS", 60)
	maxHoldsPerUser := envInt("MAX_HOLDS_PER_USER_PER_EVENT", 3)

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	return &Config{
		CRDBDSN:                       os.Getenv("CRDB_DSN"),
		MongoURI:                      os.Getenv("MONGO_URI"),
		RedisAddr:                     os.Getenv("REDIS_ADDR"),
		RabbitURL:                     os.Getenv("RABBIT_URL"),
		ListenAddr:                    listenAddr,
		OTLPEndpoint:                  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		MaxHoldSeconds:                maxHoldSeconds,
		MaxHoldsPerUserPerEvent:       maxHoldsPerUser,
		OneReservationPerUserPerEvent: envBool("ONE_RESERVATION_PER_USER_PER_EVENT"),
	}, nil
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}
