package asset

import (
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

type uploadTracker struct {
	tracker analytics.Tracker
	logger  log.Logger
}

func newUploadTracker(envRepo env.Repository, logger log.Logger) uploadTracker {
	p := analytics.Properties{
		"app_slug":   envRepo.Get("BITRISE_APP_SLUG"),
		"build_slug": envRepo.Get("BITRISE_BUILD_SLUG"),
	}
	return uploadTracker{
		tracker: analytics.NewDefaultTracker(logger, p),
		logger:  logger,
	}
}

func (t *uploadTracker) logAssetUploaded(uploadTime time.Duration, sizeBytes int64, assetType string) {
	properties := analytics.Properties{
		"upload_time_s":     uploadTime.Truncate(time.Second).Seconds(),
		"upload_size_bytes": sizeBytes,
		"asset_type":        assetType,
	}
	t.tracker.Enqueue("asset_upload_finished", properties)
}

func (t *uploadTracker) wait() {
	t.tracker.Wait()
}
