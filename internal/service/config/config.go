package config

import (
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	CatalogAddr       string          `envconfig:"CATALOG_ADDRESS"`
	CatalogTimeout    time.Duration   `envconfig:"CATALOG_TIMEOUT" default:"5s"`
	ReferralReward    decimal.Decimal `envconfig:"REFERRAL_REWARD" default:"21"`
	ReferralThreshold decimal.Decimal `envconfig:"REFERRAL_THRESHOLD_KG" default:"20"`
	HouseCode         string          `envconfig:"HOUSE_CODE" default:"HARSH21"`
	PublicURL         string          `envconfig:"PUBLIC_URL" default:"http://localhost:8080/signup"`
	Timezone          string          `envconfig:"TIMEZONE" default:"Asia/Kolkata"`
}
