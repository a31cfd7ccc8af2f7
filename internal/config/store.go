package config

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	configKey     = "kumotrade:engine:config"
	configChannel = "kumotrade:engine:config:updates"
)

// Store persists the mutable engine configuration in Redis and fans
// out updates to running engines. A nil Store is valid and turns all
// operations into no-ops, so Redis stays optional.
type Store struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewStore creates a Redis-backed config store. Returns nil when the
// client is nil.
func NewStore(client *redis.Client) *Store {
	if client == nil {
		return nil
	}
	return &Store{
		client: client,
		logger: NewLogger("config-store"),
	}
}

// Save persists the engine config and notifies watchers. The config is
// validated and stamped with the current schema version before it is
// written.
func (s *Store) Save(ctx context.Context, cfg *EngineConfig) error {
	if s == nil || s.client == nil {
		return nil
	}
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	cfg.SchemaVersion = SchemaVersion
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal engine config: %w", err)
	}

	if err := s.client.Set(ctx, configKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to persist engine config: %w", err)
	}

	if err := s.client.Publish(ctx, configChannel, payload).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish config update")
	}

	s.logger.Info().
		Str("schema_version", cfg.SchemaVersion).
		Int("symbols", len(cfg.Symbols)).
		Msg("Engine config saved")

	return nil
}

// Load reads the persisted engine config. The second return value is
// false when no config has been saved yet.
func (s *Store) Load(ctx context.Context) (*EngineConfig, bool, error) {
	if s == nil || s.client == nil {
		return nil, false, nil
	}

	loadCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	raw, err := s.client.Get(loadCtx, configKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load engine config: %w", err)
	}

	var cfg EngineConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, false, NewConfigError("engine", fmt.Sprintf("stored config is not valid JSON: %v", err))
	}

	if err := CheckCompatibility(&cfg); err != nil {
		return nil, false, NewConfigError("engine.schema_version", err.Error())
	}
	if err := Migrate(&cfg); err != nil {
		return nil, false, NewConfigError("engine.schema_version", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}

	return &cfg, true, nil
}

// Watch subscribes to config updates. The returned channel closes when
// ctx is cancelled. Invalid updates are logged and dropped.
func (s *Store) Watch(ctx context.Context) (<-chan EngineConfig, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("config store is not available")
	}

	sub := s.client.Subscribe(ctx, configChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to config updates: %w", err)
	}

	out := make(chan EngineConfig, 1)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var cfg EngineConfig
				if err := json.Unmarshal([]byte(msg.Payload), &cfg); err != nil {
					s.logger.Warn().Err(err).Msg("Dropping malformed config update")
					continue
				}
				if err := Migrate(&cfg); err != nil {
					s.logger.Warn().Err(err).Msg("Dropping config update with bad schema version")
					continue
				}
				if err := cfg.Validate(); err != nil {
					s.logger.Warn().Err(err).Msg("Dropping invalid config update")
					continue
				}
				select {
				case out <- cfg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
