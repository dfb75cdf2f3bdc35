//go:build linux

package discovery

import (
	"context"
	"fmt"

	"github.com/pilebones/go-udev/netlink"

	"github.com/soltixdb/unistor/internal/logging"
)

// blockMatcher keeps whole-disk add/remove events
func blockMatcher() netlink.Matcher {
	add := "add"
	remove := "remove"
	return &netlink.RuleDefinitions{
		Rules: []netlink.RuleDefinition{
			{Action: &add, Env: map[string]string{"SUBSYSTEM": "block", "DEVTYPE": "disk"}},
			{Action: &remove, Env: map[string]string{"SUBSYSTEM": "block", "DEVTYPE": "disk"}},
		},
	}
}

// WatchUdev calls onChange for every block disk hotplug event until ctx is
// done
func WatchUdev(ctx context.Context, onChange func(), logger *logging.Logger) error {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return fmt.Errorf("failed to connect to udev netlink: %w", err)
	}
	defer conn.Close()

	events := make(chan netlink.UEvent)
	errs := make(chan error)
	quit := conn.Monitor(events, errs, blockMatcher())
	defer close(quit)

	logger = logger.With("component", "discovery.udev")
	logger.Info("Watching block device hotplug events")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("udev event channel closed")
			}
			logger.Info("Block device event",
				"action", string(ev.Action),
				"device", ev.Env["DEVNAME"])
			onChange()
		case err := <-errs:
			logger.Warn("udev monitor error", "error", err)
		}
	}
}
