package tasks

import (
	"context"
	"time"

	"github.com/chain-credentials/issuer-api/external"
	"github.com/chain-credentials/issuer-api/models"
	"go.uber.org/zap"
)

// UpdateIssuersTask periodically updates the registry of known issuers from
// the issuer registry service.
type UpdateIssuersTask struct {
	registryURL string
	issuers     *models.IssuerRegistry
	done        chan bool
	logger      *zap.Logger
}

func NewUpdateIssuersTask(registryURL string, issuers *models.IssuerRegistry, logger *zap.Logger) *UpdateIssuersTask {
	return &UpdateIssuersTask{
		registryURL,
		issuers,
		make(chan bool),
		logger,
	}
}

func (t *UpdateIssuersTask) update() error {
	t.logger.Info("Updating issuer registry...", zap.String("url", t.registryURL))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	registryAPI := external.NewIssuerRegistryClient(t.registryURL)
	defer registryAPI.Close()
	issuers, err := registryAPI.GetIssuers(ctx)
	if err != nil {
		t.logger.Warn("Failed to update issuer registry", zap.Error(err))
		return err
	}
	t.issuers.Add(issuers)
	t.logger.Info("Issuer registry successfully updated", zap.Int("issuers", len(issuers)))

	return nil
}

func (t *UpdateIssuersTask) Run() {
	ticker := time.NewTicker(time.Duration(1) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			t.logger.Info("Update issuers task stopped")
			return
		case <-ticker.C:
			if err := t.update(); err != nil {
				// Try again quickly after a failure.
				ticker.Reset(time.Duration(30) * time.Second)
			} else {
				ticker.Reset(time.Duration(300) * time.Second)
				t.issuers.LastUpdated = time.Now()
			}
		}
	}
}

func (t *UpdateIssuersTask) Stop() error {
	t.done <- true
	return nil
}
