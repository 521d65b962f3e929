package services

import (
	"context"
	"time"

	"github.com/chain-credentials/issuer-api/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// The validity window applied when an issue request carries no explicit
// expiration date.
const defaultValidityWindow = time.Duration(365*24) * time.Hour

// IssueRequest asks for a credential binding claims about Owner to an NFT
// minted from Issuer's collection.
type IssueRequest struct {
	Owner          string
	Issuer         string
	Claims         map[string]interface{}
	ExpirationDate time.Time
}

// remainingSteps computes the ordered suffix of asset steps still needed to
// bring a credential from its persisted checkpoint to ACTIVE. Registration
// is not listed: it runs exactly once, before the record exists.
func remainingSteps(status models.InternalStatus) []string {
	switch status {
	case models.StatusPending:
		return []string{stepMint, stepDeliver, stepFreeze}
	case models.StatusMinted:
		return []string{stepDeliver, stepFreeze}
	case models.StatusDelivered:
		return []string{stepFreeze}
	default:
		return nil
	}
}

// IssueCredential issues a credential for an (owner, issuer) pair, resuming
// from the persisted checkpoint if an earlier attempt was interrupted. If
// the pair already has an active credential, that record is returned
// unchanged and no steps run.
//
// Each completed step persists the record before the next one starts, so a
// failure at any point surfaces a typed error and leaves the record exactly
// one checkpoint behind; retrying the same call continues from there.
func (s *Service) IssueCredential(ctx context.Context, req IssueRequest) (*models.Credential, error) {
	if req.Owner == "" || req.Issuer == "" {
		return nil, &ValidationError{"owner and issuer are required"}
	}

	issuer, err := s.resolveIssuer(req.Issuer)
	if err != nil {
		return nil, err
	}

	// Serialize with other issue/revoke calls for the same pair. Different
	// pairs proceed in parallel.
	unlock := s.lockPair(req.Owner, req.Issuer)
	defer unlock()

	cred, err := s.credentialByPair(ctx, req.Owner, req.Issuer)
	if err != nil {
		return nil, err
	}

	if cred != nil && cred.InternalStatus == models.StatusActive {
		// Duplicate issue request. Not an error: return the existing record
		// without touching any collaborator.
		s.m.CredentialsReissued.Inc()
		s.logger.Info("Returning existing active credential",
			zap.String("credentialID", cred.ID),
			zap.String("owner", cred.Owner),
			zap.String("issuer", cred.Issuer))
		return cred, nil
	}

	walletID, err := s.resolveWallet(ctx, req.Owner)
	if err != nil {
		return nil, err
	}

	if cred == nil {
		// Fresh pair: claim a status list slot first. The record is only
		// created once registration succeeds, so a failed registration
		// leaves nothing to clean up.
		fileID, index, err := s.registerStatusSlot(ctx, issuer)
		if err != nil {
			return nil, err
		}

		expiration := req.ExpirationDate
		if expiration.IsZero() {
			expiration = s.clock.Now().Add(defaultValidityWindow)
		}
		now := s.clock.Now()
		cred = &models.Credential{
			ID:               uuid.NewString(),
			Owner:            req.Owner,
			Issuer:           req.Issuer,
			StatusListFileID: fileID,
			StatusListIndex:  index,
			AssetSerial:      models.SerialToBeMinted,
			InternalStatus:   models.StatusPending,
			ChainStatus:      models.ChainActive,
			ExpirationDate:   expiration,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.insertCredential(ctx, cred); err != nil {
			return nil, err
		}
		s.logger.Info("Created credential record",
			zap.String("credentialID", cred.ID),
			zap.String("owner", cred.Owner),
			zap.String("issuer", cred.Issuer))
	}

	for _, step := range remainingSteps(cred.InternalStatus) {
		var err error
		switch step {
		case stepMint:
			err = s.mint(ctx, cred, issuer, req.Claims)
		case stepDeliver:
			err = s.deliver(ctx, cred, issuer, walletID)
		case stepFreeze:
			err = s.freeze(ctx, cred, issuer, walletID)
		}
		if err != nil {
			s.logger.Warn("Issue flow interrupted",
				zap.String("credentialID", cred.ID),
				zap.String("step", step),
				zap.String("checkpoint", string(cred.InternalStatus)),
				zap.Error(err))
			return nil, err
		}
	}

	s.m.CredentialsIssued.Inc()
	s.logger.Info("Issued credential",
		zap.String("credentialID", cred.ID),
		zap.String("owner", cred.Owner),
		zap.String("issuer", cred.Issuer),
		zap.String("serial", cred.AssetSerial))
	return cred, nil
}

// GetCredential looks up a credential by record id. Burned credentials
// remain queryable.
func (s *Service) GetCredential(ctx context.Context, id string) (*models.Credential, error) {
	return s.credentialByID(ctx, id)
}
