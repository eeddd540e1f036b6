// Package discovery optionally advertises a running acquisition unit
// over DNS-SD, so an operator console can find it on the LAN without
// static configuration (SPEC_FULL.md §4 C9). It never implements
// control itself — that stays the named FIFO per spec §6 — this is
// presence-announcement only, and failures here are never fatal.
package discovery

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

// ServiceType is the DNS-SD service type advertised for a running
// acquisition unit.
const ServiceType = "_heimdall-ctrl._tcp"

// Announce registers and responds to DNS-SD queries for this unit in
// the background. It returns immediately; the responder keeps running
// until ctx is cancelled. Any failure is logged and otherwise ignored —
// this is discovery, not control (spec §7 taxonomy does not include it
// at all, since it is purely a SPEC_FULL.md addition).
func Announce(ctx context.Context, logger *log.Logger, unitID, hardwareID int, port int) {
	name := fmt.Sprintf("heimdall-unit-%d", unitID)

	cfg := dnssd.Config{
		Name: name,
		Type: ServiceType,
		Port: port,
		Text: map[string]string{
			"hardware_id": fmt.Sprintf("%d", hardwareID),
		},
	}

	svc, err := dnssd.NewService(cfg)
	if err != nil {
		logger.Error("dns-sd: failed to create service", "err", err)
		return
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		logger.Error("dns-sd: failed to create responder", "err", err)
		return
	}

	if _, err := responder.Add(svc); err != nil {
		logger.Error("dns-sd: failed to add service", "err", err)
		return
	}

	logger.Info("dns-sd: advertising acquisition unit", "name", name, "type", ServiceType)

	go func() {
		if err := responder.Respond(ctx); err != nil && ctx.Err() == nil {
			logger.Error("dns-sd: responder stopped", "err", err)
		}
	}()
}
