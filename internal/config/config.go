// Package config loads the engine's static tuning knobs: retransmission
// timing, table sizes, blockwise chunk size. It mirrors the teacher's
// EDS/ini loading pattern (pkg/od/parser.go) rather than hardcoding the
// constants RFC 7252 leaves as implementation policy.
package config

import (
	"time"

	"gopkg.in/ini.v1"
)

// Config holds every tunable named in spec.md sections 3, 4.2, 4.4 and 4.5.
// Zero value is invalid; use Default() or Load().
type Config struct {
	// Transaction layer (spec.md 4.2).
	MaxRetransmit       int
	AckTimeout          time.Duration
	AckRandomFactor     float64
	MaxOpenTransactions int

	// Observe subsystem (spec.md 4.4).
	MaxObservers          int
	ObserveRefreshInterval int

	// Blockwise (spec.md 4.5). Collapses the two aliased tunables noted
	// in spec.md section 9 into one field.
	PreferredBlockSize int
	MaxReassemblySize  int

	// Client request driver (spec.md 4.6).
	MaxBlockAttempts int

	// Engine (spec.md 4.3, 5): how long a served CON request's response
	// stays cached for dedup-without-redispatch (spec.md section 5,
	// "a duplicate CON request is served from the dedup cache, never
	// re-dispatched"). Sized to cover the worst-case transaction
	// lifetime: AckTimeout * AckRandomFactor * 2^MaxRetransmit.
	DedupWindow time.Duration

	// Observe notification pacing (spec.md 4.4): interval between
	// servicing successive pending observers.
	NotifyDrainInterval      time.Duration
	NotifyDrainIntervalAfterACK time.Duration
}

// Default returns the values the original Contiki-NG coap-conf.h ships,
// translated to Go types.
func Default() Config {
	return Config{
		MaxRetransmit:       4,
		AckTimeout:          2 * time.Second,
		AckRandomFactor:     1.5,
		MaxOpenTransactions: 4,

		MaxObservers:           32,
		ObserveRefreshInterval: 20,

		PreferredBlockSize: 64,
		MaxReassemblySize:  2048,

		MaxBlockAttempts: 4,

		DedupWindow: 48 * time.Second,

		NotifyDrainInterval:         10 * time.Millisecond,
		NotifyDrainIntervalAfterACK: 1 * time.Millisecond,
	}
}

// Load reads an ini file overriding whichever keys from Default() it
// contains, under section [coap]. Missing keys or a missing file section
// keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := ini.Load(path)
	if err != nil {
		return Config{}, err
	}
	sec := f.Section("coap")

	if k, err := sec.GetKey("max_retransmit"); err == nil {
		cfg.MaxRetransmit = k.MustInt(cfg.MaxRetransmit)
	}
	if k, err := sec.GetKey("ack_timeout_ms"); err == nil {
		cfg.AckTimeout = time.Duration(k.MustInt(int(cfg.AckTimeout/time.Millisecond))) * time.Millisecond
	}
	if k, err := sec.GetKey("ack_random_factor"); err == nil {
		cfg.AckRandomFactor = k.MustFloat64(cfg.AckRandomFactor)
	}
	if k, err := sec.GetKey("max_open_transactions"); err == nil {
		cfg.MaxOpenTransactions = k.MustInt(cfg.MaxOpenTransactions)
	}
	if k, err := sec.GetKey("max_observers"); err == nil {
		cfg.MaxObservers = k.MustInt(cfg.MaxObservers)
	}
	if k, err := sec.GetKey("observe_refresh_interval"); err == nil {
		cfg.ObserveRefreshInterval = k.MustInt(cfg.ObserveRefreshInterval)
	}
	if k, err := sec.GetKey("preferred_block_size"); err == nil {
		cfg.PreferredBlockSize = k.MustInt(cfg.PreferredBlockSize)
	}
	if k, err := sec.GetKey("max_reassembly_size"); err == nil {
		cfg.MaxReassemblySize = k.MustInt(cfg.MaxReassemblySize)
	}
	if k, err := sec.GetKey("max_block_attempts"); err == nil {
		cfg.MaxBlockAttempts = k.MustInt(cfg.MaxBlockAttempts)
	}
	if k, err := sec.GetKey("dedup_window_ms"); err == nil {
		cfg.DedupWindow = time.Duration(k.MustInt(int(cfg.DedupWindow/time.Millisecond))) * time.Millisecond
	}

	return cfg, nil
}
