package services

import (
	"context"
	"fmt"

	"github.com/chain-credentials/issuer-api/models"
	"github.com/chain-credentials/issuer-api/statuslist"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// The number of unfreeze flows allowed in flight during a batch, so a
// large batch cannot overwhelm the signer gateway.
const batchUnfreezeConcurrency = 8

// RevokeRequest changes a credential's on-chain status. For REVOKED the
// bound asset is also destroyed. AssetOnly mutates the asset without
// touching the on-chain VC status.
type RevokeRequest struct {
	CredentialID string
	NewStatus    statuslist.Status
	AssetOnly    bool
}

// RevokeCredential updates a credential's status list entry and, for
// REVOKED, compensates the bound asset: unfreeze so the wipe can run, wipe
// the serial out of the holder's wallet, then re-freeze the emptied slot so
// the account's token relationship stays consistent.
//
// Any step failure aborts the sequence with the checkpoint unchanged;
// re-invoking with the same target status resumes from the same point.
func (s *Service) RevokeCredential(ctx context.Context, req RevokeRequest) (*models.Credential, error) {
	switch req.NewStatus {
	case statuslist.Revoked, statuslist.Suspended, statuslist.Resumed:
	default:
		return nil, &ValidationError{fmt.Sprintf("unsupported target status %q", req.NewStatus)}
	}

	// The first read only learns the pair key; the record itself may move
	// while we wait for the lock.
	cred, err := s.credentialByID(ctx, req.CredentialID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockPair(cred.Owner, cred.Issuer)
	defer unlock()

	cred, err = s.credentialByID(ctx, req.CredentialID)
	if err != nil {
		return nil, err
	}

	issuer, err := s.resolveIssuer(cred.Issuer)
	if err != nil {
		return nil, err
	}

	walletID, err := s.resolveWallet(ctx, cred.Owner)
	if err != nil {
		return nil, err
	}

	if req.NewStatus == statuslist.Revoked {
		switch cred.InternalStatus {
		case models.StatusActive:
			if err := s.unfreeze(ctx, cred, issuer, walletID); err != nil {
				return nil, err
			}
			if err := s.wipe(ctx, cred, issuer, walletID); err != nil {
				return nil, err
			}
			if err := s.freeze(ctx, cred, issuer, walletID); err != nil {
				return nil, err
			}
		case models.StatusBurned:
			// Asset already destroyed by an earlier attempt; only the
			// status list update remains.
		default:
			return nil, &ValidationError{fmt.Sprintf(
				"credential in state %s cannot be revoked", cred.InternalStatus)}
		}
	}

	if !req.AssetOnly {
		if err := s.signer.UpdateStatus(ctx, cred.StatusListFileID, cred.StatusListIndex, req.NewStatus); err != nil {
			s.m.StepFailures.WithLabelValues(stepStatusUpdate).Inc()
			return nil, &RemoteOperationError{Step: stepStatusUpdate, cause: err}
		}
	}

	// Re-read the list so the persisted chain status reflects what the
	// ledger actually says, not what we asked for.
	if err := s.refreshChainStatus(ctx, cred); err != nil {
		return nil, err
	}

	if req.NewStatus == statuslist.Revoked {
		s.m.CredentialsRevoked.Inc()
	}
	s.logger.Info("Updated credential status",
		zap.String("credentialID", cred.ID),
		zap.String("newStatus", string(req.NewStatus)),
		zap.String("internalStatus", string(cred.InternalStatus)),
		zap.String("chainStatus", string(cred.ChainStatus)),
		zap.Bool("assetOnly", req.AssetOnly))
	return cred, nil
}

// refreshChainStatus decodes the credential's slot from the issuer's
// status list and persists the authoritative chain status. Credentials past
// their expiration date are reported EXPIRED unless the list says REVOKED.
func (s *Service) refreshChainStatus(ctx context.Context, cred *models.Credential) error {
	encoded, err := s.signer.StatusList(ctx, cred.StatusListFileID)
	if err != nil {
		s.m.StepFailures.WithLabelValues(stepStatusRead).Inc()
		return &RemoteOperationError{Step: stepStatusRead, cause: err}
	}
	raw, err := statuslist.DecompressEncodedList(encoded)
	if err != nil {
		return err
	}
	status, err := statuslist.Decode(raw, uint(cred.StatusListIndex))
	if err != nil {
		return err
	}

	chainStatus := models.ChainStatus(status)
	if chainStatus != models.ChainRevoked && s.clock.Now().After(cred.ExpirationDate) {
		chainStatus = models.ChainExpired
	}

	cred.ChainStatus = chainStatus
	s.m.StatusRefreshes.Inc()
	return s.updateCredential(ctx, cred)
}

// RefreshChainStatus re-reads the chain status for a single credential.
func (s *Service) RefreshChainStatus(ctx context.Context, id string) (*models.Credential, error) {
	cred, err := s.credentialByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.lockPair(cred.Owner, cred.Issuer)
	defer unlock()

	// Re-read under the lock so a revoke that finished while we waited is
	// not overwritten with the stale pre-lock row.
	cred, err = s.credentialByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.refreshChainStatus(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// RefreshAllChainStatuses sweeps every non-burned credential and refreshes
// its chain status. Used by the background refresh task. Failures are
// logged and counted but do not stop the sweep.
func (s *Service) RefreshAllChainStatuses(ctx context.Context) (int, error) {
	ids, err := s.listUnburnedIDs(ctx)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, id := range ids {
		if _, err := s.RefreshChainStatus(ctx, id); err != nil {
			s.logger.Warn("Failed to refresh chain status",
				zap.String("credentialID", id),
				zap.Error(err))
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// BatchUnfreeze unfreezes the assets of many credentials with bounded
// concurrency. Each credential's pair lock is held only for its own
// unfreeze.
func (s *Service) BatchUnfreeze(ctx context.Context, ids []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchUnfreezeConcurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			cred, err := s.credentialByID(ctx, id)
			if err != nil {
				return err
			}

			unlock := s.lockPair(cred.Owner, cred.Issuer)
			defer unlock()

			cred, err = s.credentialByID(ctx, id)
			if err != nil {
				return err
			}
			issuer, err := s.resolveIssuer(cred.Issuer)
			if err != nil {
				return err
			}

			walletID, err := s.resolveWallet(ctx, cred.Owner)
			if err != nil {
				return err
			}
			return s.unfreeze(ctx, cred, issuer, walletID)
		})
	}
	return g.Wait()
}
