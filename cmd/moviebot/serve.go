package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/moviebot/internal/auth"
	"github.com/MarcoPoloResearchLab/moviebot/internal/bot"
	"github.com/MarcoPoloResearchLab/moviebot/internal/catalog"
	"github.com/MarcoPoloResearchLab/moviebot/internal/config"
	"github.com/MarcoPoloResearchLab/moviebot/internal/database"
	"github.com/MarcoPoloResearchLab/moviebot/internal/delivery"
	"github.com/MarcoPoloResearchLab/moviebot/internal/logging"
	"github.com/MarcoPoloResearchLab/moviebot/internal/membership"
	"github.com/MarcoPoloResearchLab/moviebot/internal/metadata"
	"github.com/MarcoPoloResearchLab/moviebot/internal/server"
	"github.com/MarcoPoloResearchLab/moviebot/internal/shortener"
	"github.com/MarcoPoloResearchLab/moviebot/internal/telegram"
	"github.com/MarcoPoloResearchLab/moviebot/internal/tokens"
	"github.com/MarcoPoloResearchLab/moviebot/internal/users"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	catalogService, err := catalog.NewService(catalog.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	tokenService, err := tokens.NewService(tokens.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	api, err := telegram.Connect(appConfig.BotToken)
	if err != nil {
		return err
	}
	logger.Info("telegram bot authorized", zap.String("username", api.Self.UserName))

	gate := membership.NewGate(telegram.NewChannelMembership(api), appConfig.ChannelID, logger)
	if !gate.Enabled() {
		logger.Info("subscription gate disabled")
	}

	flow, err := delivery.NewFlow(delivery.Config{
		Catalog: catalogService,
		Tokens:  tokenService,
		Users:   userService,
		Gate:    gate,
		Metadata: metadata.NewClient(metadata.ClientConfig{
			APIKey:    appConfig.TMDBAPIKey,
			BaseURL:   appConfig.TMDBBaseURL,
			CacheSize: appConfig.TMDBCacheSize,
			CacheTTL:  appConfig.TMDBCacheTTL,
			Logger:    logger,
		}),
		Shortener: shortener.NewClient(shortener.ClientConfig{
			APIKey: appConfig.ShortenerAPIKey,
			APIURL: appConfig.ShortenerAPIURL,
		}),
		BotUsername: api.Self.UserName,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	updateHandler, err := bot.NewHandler(bot.Config{
		Sender:      api,
		Flow:        flow,
		Catalog:     catalogService,
		Audience:    userService,
		Gate:        gate,
		AdminID:     appConfig.AdminID,
		ChannelID:   appConfig.ChannelID,
		ChannelLink: appConfig.ChannelLink,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := telegram.NewDispatcher(signalCtx, updateHandler, appConfig.MaxConcurrency, logger)
	defer dispatcher.Stop()

	janitor := tokens.NewJanitor(tokenService, appConfig.TokenCleanupInterval, logger)
	go janitor.Run(signalCtx)

	deps := server.Dependencies{
		WebhookSecret: appConfig.WebhookSecret,
		Catalog:       catalogService,
		Audience:      userService,
		Tokens:        tokenService,
		Logger:        logger,
	}
	if appConfig.TelegramMode == config.ModeWebhook {
		deps.Dispatcher = dispatcher
	}
	if appConfig.AdminAPIEnabled() {
		issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningSecret: []byte(appConfig.AdminSigningSecret),
			Issuer:        auth.DefaultIssuer,
			Audience:      auth.DefaultAudience,
			TokenTTL:      appConfig.AdminTokenTTL,
		})
		if err != nil {
			return err
		}
		deps.AdminTokens = issuer
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	switch appConfig.TelegramMode {
	case config.ModeWebhook:
		if err := telegram.SetWebhook(api, appConfig.WebhookURL, appConfig.WebhookSecret); err != nil {
			return err
		}
		logger.Info("webhook registered", zap.String("url", appConfig.WebhookURL))
	default:
		if err := telegram.DeleteWebhook(api); err != nil {
			return err
		}
		poller := telegram.NewPoller(api, appConfig.PollTimeoutSeconds, logger)
		go func() {
			logger.Info("polling for updates")
			if err := poller.Run(signalCtx, dispatcher.Dispatch); err != nil {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-signalCtx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
