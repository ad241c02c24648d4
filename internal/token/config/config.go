package config

import "time"

type Config struct {
	// ключ подписи обязателен: с известным ключом любой подделает роль admin
	Secret string        `envconfig:"JWT_SECRET" required:"true"`
	TTL    time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
}
