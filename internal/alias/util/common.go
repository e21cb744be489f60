package util

import (
	"io"
	"log/slog"
)

// CloseQuietly closes c and logs, rather than returns, a failure. Meant for
// deferred closes of files already read or written successfully.
func CloseQuietly(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		slog.Warn("close failed", "what", what, "err", err)
	}
}
