package filesystem

import (
	"log/slog"
	"os"
)

// defaultLogger is used by an ObjectStorage built without an explicit
// logger. It is consulted only at rescan, pack-eviction, and
// alternate-failure boundaries (spec §4.J); nothing below those three
// events logs at all, matching the teacher's own packages, which carry
// no logging dependency whatsoever.
var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// ObjectStorageOption configures optional ObjectStorage behavior at
// construction time.
type ObjectStorageOption func(*ObjectStorage)

// WithLogger installs a logger other than the package default.
func WithLogger(l *slog.Logger) ObjectStorageOption {
	return func(o *ObjectStorage) { o.log = l }
}
