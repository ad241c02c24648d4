package config

import (
	"errors"
	"flag"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	handlerConfig "github.com/iurnickita/scrapmart/internal/handler/config"
	loggerConfig "github.com/iurnickita/scrapmart/internal/logger/config"
	serviceConfig "github.com/iurnickita/scrapmart/internal/service/config"
	storeConfig "github.com/iurnickita/scrapmart/internal/store/config"
	tokenConfig "github.com/iurnickita/scrapmart/internal/token/config"
	triggerConfig "github.com/iurnickita/scrapmart/internal/trigger/config"
)

var ErrNoSecret = errors.New("JWT_SECRET must not be empty")

type Config struct {
	Handler handlerConfig.Config
	Service serviceConfig.Config
	Store   storeConfig.Config
	Logger  loggerConfig.Config
	Token   tokenConfig.Config
	Trigger triggerConfig.Config
}

// GetConfig: файл .env (если есть), затем переменные окружения, затем флаги командной строки
func GetConfig() (Config, error) {
	return load(os.Args[1:], ".env")
}

func load(args []string, envFile string) (Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	var cfg Config
	for _, section := range []any{&cfg.Handler, &cfg.Service, &cfg.Store, &cfg.Logger, &cfg.Token, &cfg.Trigger} {
		if err := envconfig.Process("", section); err != nil {
			return Config{}, err
		}
	}

	flags := flag.NewFlagSet("scrapmart", flag.ContinueOnError)
	flags.StringVar(&cfg.Handler.ServerAddr, "a", cfg.Handler.ServerAddr, "address and port to run server")
	flags.StringVar(&cfg.Store.DBDsn, "d", cfg.Store.DBDsn, "database connection string")
	flags.StringVar(&cfg.Service.CatalogAddr, "c", cfg.Service.CatalogAddr, "material catalog service address")
	flags.StringVar(&cfg.Logger.LogLevel, "l", cfg.Logger.LogLevel, "log level")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Token.Secret == "" {
		return Config{}, ErrNoSecret
	}
	return cfg, nil
}
