// Command coap-server runs a gocoap engine over a UDP socket, activating
// resources from a YAML manifest.
//
// Grounded on the teacher's cmd/canopen/main.go: flag-parsed entry
// point, config loaded from a file before anything is activated, then a
// single loop driving the engine's two entry points (OnDatagram via the
// transport's read loop, Advance on a ticker) in place of the teacher's
// ProcessSYNC/ProcessTPDO/ProcessRPDO background loop.
package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/contiki-ng/gocoap"
	"github.com/contiki-ng/gocoap/engine"
	"github.com/contiki-ng/gocoap/internal/config"
	"github.com/contiki-ng/gocoap/registry"
	"github.com/contiki-ng/gocoap/transport/udp"
	"gopkg.in/yaml.v3"
)

func main() {
	addr := flag.String("addr", ":5683", "udp listen address")
	configPath := flag.String("config", "", "engine tuning ini file (optional)")
	manifestPath := flag.String("manifest", "", "resource activation manifest (yaml)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", "path", *configPath, "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	conn, err := udp.Listen(logger, *addr, false)
	if err != nil {
		logger.Error("failed to bind udp socket", "addr", *addr, "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	e := engine.New(logger, cfg, conn)

	if *manifestPath != "" {
		resources, err := loadManifest(*manifestPath)
		if err != nil {
			logger.Error("failed to load resource manifest", "path", *manifestPath, "err", err)
			os.Exit(1)
		}
		for _, r := range resources {
			e.ActivateResource(r)
		}
	}
	activateWellKnownCore(e)

	go func() {
		if err := conn.Serve(e.OnDatagram); err != nil {
			logger.Error("udp serve loop exited", "err", err)
		}
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for now := range ticker.C {
		e.Advance(now)
	}
}

// manifestEntry is one resource description in the YAML manifest named
// in SPEC_FULL.md's domain stack table: which paths to activate and at
// what periodic interval, mirroring how cmd/canopen/main.go derives its
// object dictionary from a file rather than hardcoding entries.
type manifestEntry struct {
	Path             string `yaml:"path"`
	Observable       bool   `yaml:"observable"`
	PeriodicInterval string `yaml:"periodic_interval"`
	Attributes       string `yaml:"attributes"`
}

func loadManifest(path string) ([]*registry.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []manifestEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	resources := make([]*registry.Resource, 0, len(entries))
	for _, me := range entries {
		r := &registry.Resource{
			Path:       me.Path,
			Attributes: me.Attributes,
			Handlers:   map[coap.Code]registry.HandlerFunc{},
		}
		if me.Observable {
			r.Flags |= registry.IsObservable
		}
		if me.PeriodicInterval != "" {
			d, err := time.ParseDuration(me.PeriodicInterval)
			if err != nil {
				return nil, err
			}
			r.Flags |= registry.IsPeriodic
			r.PeriodicInterval = d
		}
		// GET returns an empty 2.05 placeholder; an application embedding
		// this binary is expected to replace Handlers with real logic
		// before calling ActivateResource. This manifest only wires up
		// the routing surface spec.md section 3 describes.
		r.Handlers[coap.CodeGET] = func(ctx *registry.Context) {
			ctx.Response.Code = coap.Content
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// activateWellKnownCore wires the link-format discovery endpoint every
// CoAP server exposes (spec.md section 3's ".well-known/core").
func activateWellKnownCore(e *engine.Engine) {
	e.AddHandler(func(ctx *registry.Context) registry.ChainResult {
		path, _ := ctx.Request.UriPath()
		if ctx.Request.Code != coap.CodeGET || path != ".well-known/core" {
			return registry.Continue
		}
		ctx.Response.Code = coap.Content
		ctx.Response.SetContentFormat(40) // application/link-format
		ctx.Response.Payload = []byte(e.LinkFormat())
		return registry.Processed
	})
}
