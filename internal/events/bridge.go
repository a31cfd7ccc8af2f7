package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultSubjectPrefix = "kumotrade.events."

// bridgeBuffer absorbs bursts while NATS flushes; overflow drops at
// the hub, never stalling publishers.
const bridgeBuffer = 256

// Bridge mirrors hub events onto NATS subjects of the form
// {prefix}{type}.{symbol}, with "-" standing in for events that carry
// no symbol. Consumers subscribe per type or with a full wildcard.
type Bridge struct {
	nc     *nats.Conn
	prefix string
	logger zerolog.Logger
	cancel func()
	done   chan struct{}
}

// BridgeConfig configures the NATS connection.
type BridgeConfig struct {
	URL           string
	SubjectPrefix string
}

// NewBridge connects to NATS. Reconnects are unbounded; while the
// connection is down, events are dropped rather than queued.
func NewBridge(cfg BridgeConfig) (*Bridge, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = defaultSubjectPrefix
	}
	nc, err := nats.Connect(
		cfg.URL,
		nats.Name("kumotrade-engine"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger := log.With().Str("component", "events_bridge").Logger()
	logger.Info().Str("url", cfg.URL).Str("prefix", cfg.SubjectPrefix).Msg("Event bridge connected")

	return &Bridge{nc: nc, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// Run attaches the bridge to a hub and starts forwarding. Call once.
func (b *Bridge) Run(hub *Hub) {
	ch, cancel := hub.Subscribe(bridgeBuffer)
	b.cancel = cancel
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		for evt := range ch {
			b.publish(evt)
		}
	}()
}

func (b *Bridge) publish(evt Event) {
	if !b.nc.IsConnected() {
		b.logger.Debug().Str("type", string(evt.Type)).Msg("NATS down, dropping event")
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to marshal event")
		return
	}
	if err := b.nc.Publish(b.subjectFor(evt), data); err != nil {
		b.logger.Warn().Err(err).Str("type", string(evt.Type)).Msg("Failed to publish event")
	}
}

func (b *Bridge) subjectFor(evt Event) string {
	symbol := evt.Symbol
	if symbol == "" {
		symbol = "-"
	}
	return fmt.Sprintf("%s%s.%s", b.prefix, evt.Type, symbol)
}

// SubscribeType delivers every event of one type, any symbol.
func (b *Bridge) SubscribeType(t Type, handler func(Event)) (*nats.Subscription, error) {
	subject := fmt.Sprintf("%s%s.*", b.prefix, t)
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		var evt Event
		if err := json.Unmarshal(m.Data, &evt); err != nil {
			b.logger.Warn().Err(err).Str("subject", m.Subject).Msg("Failed to unmarshal event")
			return
		}
		handler(evt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// Connected reports the NATS connection state.
func (b *Bridge) Connected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// Close detaches from the hub, waits for the forwarder to drain, and
// closes the connection.
func (b *Bridge) Close() {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
	if b.nc != nil {
		b.nc.Close()
	}
	b.logger.Info().Msg("Event bridge closed")
}
