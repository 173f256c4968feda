// Package main запускает HTTP-сервер оформления заказов магазина.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/obelyakov/teleshop-checkout/internal/bonus"
	"github.com/obelyakov/teleshop-checkout/internal/config"
	"github.com/obelyakov/teleshop-checkout/internal/handler"
	"github.com/obelyakov/teleshop-checkout/internal/middleware"
	"github.com/obelyakov/teleshop-checkout/internal/notify"
	"github.com/obelyakov/teleshop-checkout/internal/payment"
	"github.com/obelyakov/teleshop-checkout/internal/repository"
	"github.com/obelyakov/teleshop-checkout/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	registry := payment.NewRegistry(
		payment.NewFreeKassa(cfg.FreeKassaMerchantID, cfg.FreeKassaSecretKey, cfg.FreeKassaSecretKey2),
		payment.NewPaypalych(cfg.PaypalychAPIURL, cfg.PaypalychToken, cfg.PaypalychShopID),
	)

	var sink notify.Sink = notify.NopSink{}
	if cfg.NotifyBotAddress != "" {
		sink = notify.NewTelegramNotifier(cfg.NotifyBotAddress, cfg.NotifyBotToken, logger)
	}

	svc := service.NewService(repo, registry, sink, bonus.DefaultConfig())
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.FreeKassaMerchantID)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting checkout server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
