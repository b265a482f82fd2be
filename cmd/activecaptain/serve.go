package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/config"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/inbox"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/library"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/logging"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/metrics"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/notify"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/server"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin API and install tiles dropped into the inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// openLibrary wires the store and the merge engine for cfg. The library is
// opened when present; a missing file is not an error.
func openLibrary(ctx context.Context, appConfig config.AppConfig, publisher notify.Publisher, recorder *metrics.Recorder, logger *zap.Logger) (*library.Service, *store.Store, error) {
	libraryStore, err := store.New(store.Config{
		Path:          appConfig.DatabasePath,
		JournalPolicy: appConfig.JournalPolicy,
		Publisher:     publisher,
		Logger:        logger.Named("store"),
	})
	if err != nil {
		return nil, nil, err
	}

	service, err := library.NewService(library.Config{
		Store:            libraryStore,
		Publisher:        publisher,
		Metrics:          recorder,
		MergePageSize:    appConfig.MergePageSize,
		SummaryCacheSize: appConfig.SummaryCacheSize,
		SummaryCacheTTL:  appConfig.SummaryCacheTTL,
		Logger:           logger.Named("library"),
	})
	if err != nil {
		return nil, nil, err
	}

	if err := service.OpenDatabase(ctx); err != nil && !errors.Is(err, store.ErrDatabaseMissing) {
		if !errors.Is(err, store.ErrRejectedDatabase) {
			return nil, nil, err
		}
		logger.Warn("library database rejected and removed", zap.String("path", appConfig.DatabasePath), zap.Error(err))
	}
	return service, libraryStore, nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	tokenIssuer, err := appConfig.TokenIssuer()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		return err
	}

	dispatcher := notify.NewDispatcher()
	service, libraryStore, err := openLibrary(ctx, appConfig, dispatcher, recorder, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := libraryStore.Close(); closeErr != nil {
			logger.Error("library close failed", zap.Error(closeErr))
		}
	}()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Library:        service,
		Tokens:         tokenIssuer,
		Events:         dispatcher,
		Gatherer:       registry,
		StagingDir:     appConfig.StagingDir,
		UploadMaxBytes: appConfig.UploadMaxBytes,
		AllowedOrigins: appConfig.CORSAllowedOrigins,
		WriteRateLimit: appConfig.WriteRateLimit,
		WriteBurst:     appConfig.WriteBurst,
		Logger:         logger.Named("http"),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		handler.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if appConfig.InboxDir != "" {
		watcher, err := inbox.New(inbox.Config{
			Dir:       appConfig.InboxDir,
			Debounce:  appConfig.InboxDebounce,
			Installer: service,
			Logger:    logger.Named("inbox"),
		})
		if err != nil {
			stop()
			_ = group.Wait()
			return err
		}
		group.Go(func() error {
			logger.Info("inbox watcher starting", zap.String("dir", appConfig.InboxDir))
			return watcher.Run(groupCtx)
		})
	}

	err = group.Wait()
	logger.Info("server stopped")
	return err
}
