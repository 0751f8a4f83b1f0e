package services

import (
	"context"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/logging"
)

// DownloadEvent describes a completed download.
type DownloadEvent struct {
	ShareID   string
	Timestamp time.Time
	IP        string
	Bytes     int64
}

// Notifier is told about completed downloads. Implementations must not block.
type Notifier interface {
	DownloadCompleted(ctx context.Context, ev DownloadEvent)
}

type NopNotifier struct{}

func (NopNotifier) DownloadCompleted(context.Context, DownloadEvent) {}

// LogNotifier writes completed downloads to the application log. The client
// address is left out.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notifier")}
}

func (n *LogNotifier) DownloadCompleted(ctx context.Context, ev DownloadEvent) {
	n.logger.Info(ctx, "download completed", "share_id", ev.ShareID, "bytes", ev.Bytes, "at", ev.Timestamp)
}
