//go:build linux

package netwatch

import (
	"context"
	"log/slog"

	"github.com/vishvananda/netlink"
)

// subscribe turns netlink address updates into change hints.
func subscribe(ctx context.Context, logger *slog.Logger) (<-chan struct{}, error) {
	updates := make(chan netlink.AddrUpdate, 16)
	done := make(chan struct{})
	err := netlink.AddrSubscribeWithOptions(updates, done, netlink.AddrSubscribeOptions{
		ErrorCallback: func(err error) {
			logger.Warn("netlink subscription error", "error", err)
		},
	})
	if err != nil {
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				close(done)
				// Drain until netlink closes the channel.
				for range updates {
				}
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				logger.Debug("address update",
					"link_index", u.LinkIndex,
					"address", u.LinkAddress.String(),
					"new", u.NewAddr)
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}
