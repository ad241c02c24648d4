package config

type Config struct {
	DBDsn      string `envconfig:"DATABASE_URI"`
	PaymentKey string `envconfig:"PAYMENT_KEY"`
}
