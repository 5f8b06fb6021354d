package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Server
	Port string `env:"PORT" envDefault:"8080"`

	// MongoDB
	MongoURI      string `env:"MONGOURI,required"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"errandsdb"`

	// Auth
	JWTSecret string        `env:"JWT_SECRET,required"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	// Tuma payment gateway
	TumaBaseURL  string `env:"TUMA_API_URL" envDefault:"https://api.tuma.co.ke"`
	TumaEmail    string `env:"TUMA_BUSINESS_EMAIL,required"`
	TumaAPIKey   string `env:"TUMA_API_KEY,required"`
	CallbackBase string `env:"CALLBACK_BASE_URL,required"` // public base URL for the gateway webhook

	// Payment polling
	PollInterval time.Duration `env:"PAYMENT_POLL_INTERVAL" envDefault:"3s"`
	PollAttempts int           `env:"PAYMENT_POLL_ATTEMPTS" envDefault:"20"`

	// Event bridge (optional; events stay in-process when unset)
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"errands.events"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// CallbackURL is the full webhook endpoint handed to the gateway on each
// STK push request.
func (c *Config) CallbackURL() string {
	return c.CallbackBase + "/api/payment/callback"
}
