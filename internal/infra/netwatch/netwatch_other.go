//go:build !linux

package netwatch

import (
	"context"
	"errors"
	"log/slog"
)

func subscribe(context.Context, *slog.Logger) (<-chan struct{}, error) {
	return nil, errors.New("address events not supported on this platform")
}
