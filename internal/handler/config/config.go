package config

import "time"

type Config struct {
	ServerAddr      string        `envconfig:"RUN_ADDRESS" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	QRSize          int           `envconfig:"QR_SIZE" default:"256"`
}
