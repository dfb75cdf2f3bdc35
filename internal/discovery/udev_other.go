//go:build !linux

package discovery

import (
	"context"
	"errors"

	"github.com/soltixdb/unistor/internal/logging"
)

// WatchUdev is only available on linux
func WatchUdev(_ context.Context, _ func(), _ *logging.Logger) error {
	return errors.New("udev hotplug is only supported on linux")
}
