// Package events carries the engine's emissions: log lines worth
// surfacing, per-pair analysis outcomes, tradeable signals, order
// placements, and position lifecycle changes. The hub fans events out
// to in-process subscribers without ever blocking the trading path;
// the bridge mirrors them onto NATS for external consumers.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// Type tags an event stream.
type Type string

const (
	TypeLog      Type = "log"
	TypeAnalysis Type = "analysis"
	TypeSignal   Type = "signal"
	TypeTrade    Type = "trade"
	TypePosition Type = "position"
)

// Event is one emission. Payload holds the type-specific struct in
// JSON so subscribers and the NATS bridge share a single wire shape.
type Event struct {
	ID        uuid.UUID        `json:"id"`
	Type      Type             `json:"type"`
	Symbol    string           `json:"symbol,omitempty"`
	Timeframe market.Timeframe `json:"timeframe,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   json.RawMessage  `json:"payload"`
}

// LogPayload mirrors a log line into the event stream.
type LogPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// AnalysisPayload is the outcome of one (symbol, timeframe) pass.
type AnalysisPayload struct {
	Strategy       string   `json:"strategy"`
	Direction      string   `json:"direction"`
	Score          int      `json:"score"`
	Confluence     int      `json:"confluence"`
	Grade          string   `json:"grade"`
	QualityScore   int      `json:"quality_score"`
	WinProbability float64  `json:"win_probability"`
	Tradeable      bool     `json:"tradeable"`
	RejectReason   string   `json:"reject_reason,omitempty"`
	Price          float64  `json:"price"`
	Reasons        []string `json:"reasons,omitempty"`
}

// SignalPayload is a tradeable signal entering the opportunity list.
type SignalPayload struct {
	Strategy       string   `json:"strategy"`
	Direction      string   `json:"direction"`
	Score          int      `json:"score"`
	Confluence     int      `json:"confluence"`
	Grade          string   `json:"grade"`
	QualityScore   int      `json:"quality_score"`
	WinProbability float64  `json:"win_probability"`
	SuggestedSL    *float64 `json:"suggested_sl,omitempty"`
	SuggestedTP    *float64 `json:"suggested_tp,omitempty"`
}

// TradePayload is an acknowledged order.
type TradePayload struct {
	OrderID        string  `json:"order_id"`
	Direction      string  `json:"direction"`
	EntryPrice     float64 `json:"entry_price"`
	Size           float64 `json:"size"`
	StopLoss       float64 `json:"stop_loss,omitempty"`
	TakeProfit     float64 `json:"take_profit,omitempty"`
	Leverage       int     `json:"leverage"`
	Grade          string  `json:"grade,omitempty"`
	WinProbability float64 `json:"win_probability,omitempty"`
}

// PositionPayload is a position lifecycle change. Change is one of
// "opened", "closed", "synced".
type PositionPayload struct {
	Change     string  `json:"change"`
	Direction  string  `json:"direction"`
	EntryPrice float64 `json:"entry_price"`
	Size       float64 `json:"size"`
	PnL        float64 `json:"pnl,omitempty"`
	ExitReason string  `json:"exit_reason,omitempty"`
	FromSync   bool    `json:"from_sync,omitempty"`
}

const defaultSubscriberBuffer = 64

// Hub fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full loses the event and the drop counter
// advances. The trading path must not stall on a slow consumer.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	dropped atomic.Uint64
	logger  zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[int]chan Event),
		logger: log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a subscriber and returns its channel plus a
// cancel func. Cancel is idempotent and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			// Close under the write lock so no publish is mid-send.
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has room.
func (h *Hub) Publish(evt Event) {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped on full buffers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) emit(t Type, symbol string, tf market.Timeframe, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn().Err(err).Str("type", string(t)).Msg("Dropping unmarshalable event payload")
		return
	}
	h.Publish(Event{Type: t, Symbol: symbol, Timeframe: tf, Payload: data})
}

// EmitLog publishes a log-mirror event.
func (h *Hub) EmitLog(level, message string) {
	h.emit(TypeLog, "", "", LogPayload{Level: level, Message: message})
}

// EmitAnalysis publishes the outcome of one analysis pass.
func (h *Hub) EmitAnalysis(symbol string, tf market.Timeframe, p AnalysisPayload) {
	h.emit(TypeAnalysis, symbol, tf, p)
}

// EmitSignal publishes a tradeable signal.
func (h *Hub) EmitSignal(symbol string, tf market.Timeframe, p SignalPayload) {
	h.emit(TypeSignal, symbol, tf, p)
}

// EmitTrade publishes an acknowledged order.
func (h *Hub) EmitTrade(symbol string, p TradePayload) {
	h.emit(TypeTrade, symbol, "", p)
}

// EmitPosition publishes a position lifecycle change.
func (h *Hub) EmitPosition(symbol string, p PositionPayload) {
	h.emit(TypePosition, symbol, "", p)
}
