package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/kumotrade/internal/alerts"
	"github.com/ajitpratap0/kumotrade/internal/auth"
	"github.com/ajitpratap0/kumotrade/internal/config"
	"github.com/ajitpratap0/kumotrade/internal/connection"
	"github.com/ajitpratap0/kumotrade/internal/engine"
	"github.com/ajitpratap0/kumotrade/internal/events"
	"github.com/ajitpratap0/kumotrade/internal/exchange"
	"github.com/ajitpratap0/kumotrade/internal/journal"
	"github.com/ajitpratap0/kumotrade/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to the config file (default: ./configs/config.yaml)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	log.Info().
		Str("environment", cfg.App.Environment).
		Str("exchange_mode", cfg.Exchange.Mode).
		Str("strategy", cfg.Engine.Strategy).
		Msg("Starting kumotrade engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis-backed engine config overrides the file when present
	var store *config.Store
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = config.NewStore(redisClient)
		if stored, found, err := store.Load(ctx); err != nil {
			log.Warn().Err(err).Msg("Config store unavailable, using file configuration")
			store = nil
		} else if found {
			cfg.Engine = *stored
			log.Info().Msg("Engine configuration loaded from config store")
		}
	}
	if err := config.Migrate(&cfg.Engine); err != nil {
		log.Fatal().Err(err).Msg("Engine configuration schema is incompatible")
	}

	// Venue: paper simulator over public market data, or live Binance
	// futures with credentials from Vault or the environment. venue is
	// assigned before any probe can run.
	var venue exchange.Client
	marketProbe := func(ctx context.Context) error {
		if venue == nil {
			return nil
		}
		_, err := venue.GetAllMids(ctx)
		return err
	}
	balanceProbe := func(ctx context.Context) error {
		if venue == nil {
			return nil
		}
		_, err := venue.GetAccountBalance(ctx)
		return err
	}

	var provider auth.Provider
	if cfg.Exchange.Mode == "live" {
		if cfg.Vault.Enabled {
			vp, err := auth.NewVaultProvider(auth.VaultSettings{
				Address:    cfg.Vault.Address,
				Token:      cfg.Vault.Token,
				MountPath:  cfg.Vault.MountPath,
				SecretPath: cfg.Vault.SecretPath,
			}, balanceProbe)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to initialize vault credentials")
			}
			provider = vp
		} else {
			provider = auth.NewEnvProvider(balanceProbe)
		}

		creds, err := provider.Credentials(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load venue credentials")
		}
		venue = exchange.NewBinanceClient(exchange.BinanceConfig{
			APIKey:    creds.APIKey,
			SecretKey: creds.APISecret,
		})
	} else {
		data := exchange.NewBinanceClient(exchange.BinanceConfig{})
		pcfg := exchange.DefaultPaperConfig()
		if cfg.Exchange.PaperEquity > 0 {
			pcfg.StartingEquity = cfg.Exchange.PaperEquity
		}
		if cfg.Exchange.SlippagePct > 0 {
			pcfg.SlippagePct = cfg.Exchange.SlippagePct
		}
		if cfg.Exchange.TakerFeePct > 0 {
			pcfg.TakerFeePct = cfg.Exchange.TakerFeePct
		}
		venue = exchange.NewPaperExchange(data, pcfg)
		provider = auth.NewPaperProvider(marketProbe)
	}

	// Alert fan-out: log sink always, telegram when configured
	sinks := []alerts.Alerter{alerts.NewLogAlerter()}
	if cfg.Telegram.Enabled {
		tg, err := alerts.NewTelegramAlerter(cfg.Telegram)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram alerter unavailable, falling back to log alerts")
		} else {
			sinks = append(sinks, tg)
		}
	}
	alertManager := alerts.NewManager(5*time.Minute, sinks...)

	// Wrap every venue call in the deadline, rate limit and breaker
	guard := exchange.DefaultGuardSettings()
	if cfg.Exchange.RequestTimeout > 0 {
		guard.RequestTimeout = cfg.Exchange.RequestTimeout
	}
	if cfg.Exchange.RateLimitPerSec > 0 {
		guard.RatePerSec = cfg.Exchange.RateLimitPerSec
	}
	if cfg.Exchange.RateLimitBurst > 0 {
		guard.Burst = cfg.Exchange.RateLimitBurst
	}
	venue = exchange.NewGuardedClient(venue, guard, func(from, to gobreaker.State) {
		if to == gobreaker.StateOpen {
			if err := alertManager.BreakerOpen(context.Background(), "exchange"); err != nil {
				log.Warn().Err(err).Msg("Breaker alert not delivered")
			}
		}
	})

	// Event hub, mirrored onto NATS when enabled
	hub := events.NewHub()
	var bridge *events.Bridge
	if cfg.NATS.Enabled {
		b, err := events.NewBridge(events.BridgeConfig{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		})
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, events stay in-process")
		} else {
			b.Run(hub)
			bridge = b
		}
	}

	// Trade journal is optional; trading never blocks on persistence
	jnl, err := journal.New(ctx, cfg.Journal)
	if err != nil {
		log.Warn().Err(err).Msg("Journal unavailable, trading continues without persistence")
		jnl = nil
	}
	defer jnl.Close()

	metricsServer := metrics.NewServer(cfg.Metrics)
	if err := metricsServer.Start(); err != nil {
		log.Warn().Err(err).Msg("Metrics server failed to start")
	}

	// Assemble and start the engine
	eng, err := engine.New(cfg.Engine, engine.Options{
		Exchange: venue,
		Auth:     provider,
		Hub:      hub,
		Journal:  jnl,
		Alerts:   alertManager,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble engine")
	}
	if err := eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start engine")
	}

	// Connection watchdog: probe the venue, resync positions after
	// repeated failures
	conn := connection.NewManager(0, 0)
	conn.SetCallbacks(connection.Callbacks{
		APIHealthCheck: func(ctx context.Context) error {
			_, err := venue.GetAllMids(ctx)
			return err
		},
		WSReconnect: func(ctx context.Context) error {
			_, err := eng.Positions().Sync(ctx)
			return err
		},
	})
	if err := conn.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("Connection watchdog failed to start")
	}

	// Live config updates from the store
	if store != nil {
		updates, err := store.Watch(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Config watch unavailable")
		} else {
			go func() {
				for next := range updates {
					if err := eng.UpdateConfig(next); err != nil {
						log.Warn().Err(err).Msg("Rejected config update from store")
					}
				}
			}()
		}
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	conn.Stop()
	eng.Stop()
	if bridge != nil {
		bridge.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Metrics server shutdown error")
	}
	if redisClient != nil {
		redisClient.Close()
	}

	log.Info().Msg("Engine stopped gracefully")
}
