package logger

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// SamplingConfig configures log sampling. The first Threshold records with
// the same level and message in each Tick are always written; the rest are
// written with probability Rate (ErrorRate for warn and above).
type SamplingConfig struct {
	Enabled   bool
	Tick      time.Duration
	Threshold uint64
	Rate      float64
	ErrorRate float64
}

type samplingState struct {
	mu       sync.Mutex
	counts   map[string]uint64
	resetAt  time.Time
	tick     time.Duration
	maxCount int
}

type samplingHandler struct {
	handler slog.Handler
	config  SamplingConfig
	state   *samplingState
	random  func() float64
}

// NewSamplingHandler wraps h with sampling. It returns h unchanged when
// sampling is disabled.
func NewSamplingHandler(h slog.Handler, cfg SamplingConfig) slog.Handler {
	if !cfg.Enabled {
		return h
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 100
	}
	return &samplingHandler{
		handler: h,
		config:  cfg,
		state: &samplingState{
			counts:   make(map[string]uint64),
			resetAt:  time.Now().Add(cfg.Tick),
			tick:     cfg.Tick,
			maxCount: 10000,
		},
		random: rand.Float64,
	}
}

func (h *samplingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *samplingHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.allow(r) {
		return nil
	}
	return h.handler.Handle(ctx, r)
}

func (h *samplingHandler) allow(r slog.Record) bool {
	n := h.state.incr(r.Level.String() + ":" + r.Message)
	if n <= h.config.Threshold {
		return true
	}
	rate := h.config.Rate
	if r.Level >= slog.LevelWarn {
		rate = h.config.ErrorRate
	}
	return h.random() < rate
}

func (s *samplingState) incr(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.After(s.resetAt) || len(s.counts) >= s.maxCount {
		s.counts = make(map[string]uint64)
		s.resetAt = now.Add(s.tick)
	}
	s.counts[key]++
	return s.counts[key]
}

func (h *samplingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &samplingHandler{handler: h.handler.WithAttrs(attrs), config: h.config, state: h.state, random: h.random}
}

func (h *samplingHandler) WithGroup(name string) slog.Handler {
	return &samplingHandler{handler: h.handler.WithGroup(name), config: h.config, state: h.state, random: h.random}
}
