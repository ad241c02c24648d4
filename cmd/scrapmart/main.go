package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iurnickita/scrapmart/internal/auth"
	"github.com/iurnickita/scrapmart/internal/catalog"
	"github.com/iurnickita/scrapmart/internal/catalog/catalogclient"
	"github.com/iurnickita/scrapmart/internal/config"
	"github.com/iurnickita/scrapmart/internal/handler"
	"github.com/iurnickita/scrapmart/internal/logger"
	"github.com/iurnickita/scrapmart/internal/service"
	"github.com/iurnickita/scrapmart/internal/store"
	"github.com/iurnickita/scrapmart/internal/trigger/alert"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	// каталог: внешний сервис или собственная таблица со стартовым прайсом
	var materials catalog.Gateway
	if cfg.Service.CatalogAddr != "" {
		materials = catalogclient.NewCatalogClient(cfg.Service.CatalogAddr, cfg.Service.CatalogTimeout)
	} else {
		seeded, err := catalog.Seed(ctx, store)
		if err != nil {
			return err
		}
		if seeded > 0 {
			zaplog.Info("material catalog seeded", zap.Int("materials", seeded))
		}
		materials = catalog.NewStoreGateway(store)
	}

	sink := alert.NewLogSink(zaplog)
	if cfg.Trigger.AlertWebhook != "" {
		sink = alert.NewWebhookSink(cfg.Trigger.AlertWebhook, cfg.Trigger.AlertTimeout, zaplog)
	}

	service, err := service.NewService(cfg.Service, cfg.Trigger, store, materials, sink, zaplog)
	if err != nil {
		return err
	}
	auth := auth.NewAuth(cfg.Token)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return handler.Serve(gctx, cfg.Handler, auth, service, zaplog)
	})
	err = g.Wait()

	// незавершённые начисления дожидаемся до таймаута остановки
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Handler.ShutdownTimeout)
	defer cancel()
	if closeErr := service.Close(shutdownCtx); closeErr != nil {
		zaplog.Warn("pending referral evaluations interrupted", zap.Error(closeErr))
	}

	zaplog.Info("server stopped")
	return err
}
