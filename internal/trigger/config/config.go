package config

import "time"

type Config struct {
	Attempts     int           `envconfig:"TRIGGER_ATTEMPTS" default:"5"`
	Backoff      time.Duration `envconfig:"TRIGGER_BACKOFF" default:"500ms"`
	MaxBackoff   time.Duration `envconfig:"TRIGGER_MAX_BACKOFF" default:"10s"`
	AlertWebhook string        `envconfig:"ALERT_WEBHOOK"`
	AlertTimeout time.Duration `envconfig:"ALERT_TIMEOUT" default:"5s"`
}
