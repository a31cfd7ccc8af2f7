package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// tradeState is the overtrading ledger plus the per-symbol decision
// locks. The trade gate and the position-close callback are its only
// writers; every critical section is a few field reads or writes.
type tradeState struct {
	mu sync.Mutex

	lastTradeAt  map[string]time.Time
	lastGlobalAt time.Time

	consecutiveLongs  int
	consecutiveShorts int
	consecutiveLosses int
	pausedUntil       time.Time

	locked map[string]struct{}
}

// StateSnapshot is a point-in-time copy of the overtrading ledger.
type StateSnapshot struct {
	ConsecutiveLongs  int
	ConsecutiveShorts int
	ConsecutiveLosses int
	PausedUntil       time.Time
	LastGlobalTradeAt time.Time
	LockedSymbols     []string
}

func newTradeState() *tradeState {
	return &tradeState{
		lastTradeAt: make(map[string]time.Time),
		locked:      make(map[string]struct{}),
	}
}

// TryLock claims the per-symbol decision lock. Returns false when
// another decision for the symbol is already in flight.
func (s *tradeState) TryLock(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.locked[symbol]; held {
		return false
	}
	s.locked[symbol] = struct{}{}
	return true
}

// Unlock releases the per-symbol decision lock. Safe to call for a
// symbol that is not locked.
func (s *tradeState) Unlock(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locked, symbol)
}

// RecordTrade anchors the cooldown clocks and bumps the matching
// consecutive-direction counter; the opposite counter resets to zero.
// Called only after the venue acknowledges the order.
func (s *tradeState) RecordTrade(symbol string, dir market.Direction, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTradeAt[symbol] = now
	s.lastGlobalAt = now
	if dir == market.DirectionLong {
		s.consecutiveLongs++
		s.consecutiveShorts = 0
	} else {
		s.consecutiveShorts++
		s.consecutiveLongs = 0
	}
}

// SymbolCooldownLeft returns how much of the per-symbol cooldown is
// still running, or zero when the symbol is clear.
func (s *tradeState) SymbolCooldownLeft(symbol string, cooldown time.Duration, now time.Time) time.Duration {
	if cooldown <= 0 {
		return 0
	}
	s.mu.Lock()
	last, ok := s.lastTradeAt[symbol]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	if left := cooldown - now.Sub(last); left > 0 {
		return left
	}
	return 0
}

// GlobalCooldownLeft returns how much of the venue-wide cooldown is
// still running, or zero when any symbol may trade.
func (s *tradeState) GlobalCooldownLeft(cooldown time.Duration, now time.Time) time.Duration {
	if cooldown <= 0 {
		return 0
	}
	s.mu.Lock()
	last := s.lastGlobalAt
	s.mu.Unlock()
	if last.IsZero() {
		return 0
	}
	if left := cooldown - now.Sub(last); left > 0 {
		return left
	}
	return 0
}

// ConsecutiveInDirection returns the current run length for the given
// side.
func (s *tradeState) ConsecutiveInDirection(dir market.Direction) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dir == market.DirectionLong {
		return s.consecutiveLongs
	}
	return s.consecutiveShorts
}

// RecordLoss advances the loss streak. When the streak reaches
// maxLosses it arms the pause and returns its expiry; otherwise the
// returned time is zero.
func (s *tradeState) RecordLoss(now time.Time, maxLosses int, pause time.Duration) (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveLosses++
	if maxLosses > 0 && s.consecutiveLosses >= maxLosses && pause > 0 {
		s.pausedUntil = now.Add(pause)
		return s.consecutiveLosses, s.pausedUntil
	}
	return s.consecutiveLosses, time.Time{}
}

// RecordWin resets the loss streak and clears any active pause.
func (s *tradeState) RecordWin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveLosses = 0
	s.pausedUntil = time.Time{}
}

// PausedUntil returns the pause expiry, zero when trading is open.
func (s *tradeState) PausedUntil() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pausedUntil
}

// Losses returns the current consecutive-loss streak.
func (s *tradeState) Losses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveLosses
}

// Snapshot copies the ledger for status reporting.
func (s *tradeState) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbols := make([]string, 0, len(s.locked))
	for sym := range s.locked {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	return StateSnapshot{
		ConsecutiveLongs:  s.consecutiveLongs,
		ConsecutiveShorts: s.consecutiveShorts,
		ConsecutiveLosses: s.consecutiveLosses,
		PausedUntil:       s.pausedUntil,
		LastGlobalTradeAt: s.lastGlobalAt,
		LockedSymbols:     symbols,
	}
}
