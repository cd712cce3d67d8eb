package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"ratewatch/internal/acquisition"
	"ratewatch/internal/adapters/coingecko"
	"ratewatch/internal/api"
	"ratewatch/internal/cache"
	"ratewatch/internal/config"
	"ratewatch/internal/freshness"
	"ratewatch/internal/metrics"
	httpserver "ratewatch/internal/platform/http"
	"ratewatch/internal/rates/handler"
	"ratewatch/internal/settings"
)

// Run wires the application components, starts the scheduler and HTTP server
func Run() error {
	appCfg, err := config.Init()
	if err != nil {
		return err
	}
	// Logger
	logrus.SetOutput(os.Stdout)
	cfgLevel := appCfg.Logging.Level
	if parsedLvl, parseErr := logrus.ParseLevel(cfgLevel); parseErr != nil {
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetLevel(parsedLvl)
	}
	logrus.Info("✅ Config initialization successful")

	// Root context bound to OS signals for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Settings collaborator: optional overrides layer over file config
	settingsStore := settings.NewMemoryStore(nil)
	apiKey := appCfg.Provider.APIKey
	thresholds := appCfg.Thresholds()
	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	overrideKeys := []string{settings.KeyAPIKey, settings.KeyStaleThresholdMs}
	if overrides, getErr := settingsStore.Get(startupCtx, overrideKeys); getErr == nil {
		if override, ok := overrides[settings.KeyAPIKey]; ok && override != "" {
			apiKey = override
		}
		if override, ok := overrides[settings.KeyStaleThresholdMs]; ok {
			if ms, parseErr := strconv.ParseInt(override, 10, 64); parseErr == nil && ms > 0 {
				thresholds.Stale = time.Duration(ms) * time.Millisecond
			}
		}
	}

	// Base HTTP client (configurable timeout)
	httpTimeout := time.Duration(appCfg.HTTPClient.TimeoutSeconds) * time.Second
	if httpTimeout <= 0 {
		httpTimeout = 10 * time.Second
	}
	baseHTTPClient := &http.Client{Timeout: httpTimeout}

	// Upstream client
	priceClient, err := coingecko.NewClient(
		baseHTTPClient,
		appCfg.Provider.BaseURL,
		apiKey,
		appCfg.Provider.PivotCoin,
		appCfg.Currencies.SupportedFiats,
	)
	if err != nil {
		logrus.WithError(err).Error("Failed to create provider client")
		return err
	}
	defer priceClient.Close()
	logrus.Info("✅ Provider client ready")

	// Cache store and freshness monitor
	store := cache.NewStore("coingecko")
	monitor := freshness.NewMonitor(store, thresholds, appCfg.Staleness.HistorySize)

	rateMetrics := metrics.NewRateMetrics()
	monitor.OnTierChange(func(change freshness.TierChange) {
		rateMetrics.TierTransitions.WithLabelValues(string(change.Previous), string(change.Current)).Inc()
		logrus.WithFields(logrus.Fields{
			"previous": change.Previous,
			"current":  change.Current,
		}).Warn("Staleness tier changed")
	})
	monitor.OnCritical(func(change freshness.TierChange) {
		logrus.WithField("level", change.Current).Error("Rate data is critically stale")
	})

	// Acquisition pipeline over the two feeds
	coinIDs := make([]string, 0, len(appCfg.Currencies.SupportedCryptos))
	for _, coinID := range appCfg.Currencies.SupportedCryptos {
		coinIDs = append(coinIDs, coinID)
	}
	slices.Sort(coinIDs)
	pipeline := acquisition.NewPipeline(priceClient, store, coinIDs, appCfg.Currencies.CryptoVsCurrencies)
	pipeline.OnStage(func(event acquisition.StageEvent) {
		if event.Status == acquisition.StageError {
			rateMetrics.StageErrorsTotal.WithLabelValues(string(event.Stage)).Inc()
		}
	})

	observeCache := func() {
		status := store.Status()
		if status.AgeMs != nil {
			rateMetrics.CacheAgeSeconds.Set(float64(*status.AgeMs) / 1000)
		}
		rateMetrics.CacheCryptoCount.Set(float64(status.CryptoCount))
		rateMetrics.CacheFiatCount.Set(float64(status.FiatCount))
		// Drives lazy tier-transition detection after every cycle.
		monitor.DetailedStatus()
	}

	scheduler := acquisition.NewScheduler(
		pipeline,
		appCfg.RefreshInterval(),
		appCfg.RetryDelay(),
		appCfg.Scheduler.MaxRetries,
		acquisition.Hooks{
			OnStart: func() { logrus.Info("✅ Scheduler activation successful") },
			OnSuccess: func(result acquisition.CycleResult) {
				rateMetrics.CyclesTotal.WithLabelValues("success").Inc()
				observeCache()
			},
			OnError: func(cycleErr error) {
				rateMetrics.CyclesTotal.WithLabelValues("failure").Inc()
				observeCache()
			},
			OnRetryScheduled: func(attempt int, delay time.Duration) {
				rateMetrics.RetriesScheduled.Inc()
			},
		},
	)
	// Ensure scheduler stops before the provider client closes
	defer func() {
		if shutDownErr := scheduler.Stop(); shutDownErr != nil {
			logrus.Errorf("Scheduler shutdown error: %v", shutDownErr)
		}
	}()
	if _, startErr := scheduler.Start(ctx); startErr != nil {
		logrus.WithError(startErr).Error("Failed to start scheduler")
		return startErr
	}

	// Handlers and router
	rateHandler := handler.NewRateHandler(store, monitor, scheduler)
	router := api.NewRouter(rateHandler)

	logrus.Info("Starting http server")
	// Block until context is canceled, then perform graceful shutdown.
	if serverErr := httpserver.Start(ctx, appCfg.HTTPServer, router); serverErr != nil {
		// Cancel the root context to stop scheduler and other in-flight work
		stop()
		logrus.Errorf("HTTP server error: %v", serverErr)
		return serverErr
	}
	return nil
}
