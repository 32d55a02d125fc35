package testutil

import (
	"io"
	"log/slog"
)

func MakeNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}
