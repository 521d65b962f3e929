package tasks

import (
	"context"
	"time"

	"github.com/chain-credentials/issuer-api/services"
	"go.uber.org/zap"
)

const statusRefreshInterval = time.Duration(600) * time.Second

// RefreshStatusTask periodically re-reads the issuer status lists and
// refreshes the persisted chain status of every credential with a live
// asset, so expiry and out-of-band revocations become visible without a
// client request.
type RefreshStatusTask struct {
	svc    *services.Service
	done   chan bool
	logger *zap.Logger
}

func NewRefreshStatusTask(svc *services.Service, logger *zap.Logger) *RefreshStatusTask {
	return &RefreshStatusTask{
		svc,
		make(chan bool),
		logger,
	}
}

func (t *RefreshStatusTask) Run() {
	ticker := time.NewTicker(statusRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			t.logger.Info("Refresh status task stopped")
			return
		case <-ticker.C:
			refreshed, err := t.svc.RefreshAllChainStatuses(context.Background())
			if err != nil {
				t.logger.Warn("Chain status sweep failed", zap.Error(err))
				continue
			}
			t.logger.Info("Chain status sweep complete", zap.Int("refreshed", refreshed))
		}
	}
}

func (t *RefreshStatusTask) Stop() error {
	t.done <- true
	return nil
}
