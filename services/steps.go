package services

import (
	"context"
	"encoding/json"

	"github.com/chain-credentials/issuer-api/models"
	"go.uber.org/zap"
)

const (
	stepRegister     = "register"
	stepMint         = "mint"
	stepDeliver      = "deliver"
	stepFreeze       = "freeze"
	stepUnfreeze     = "unfreeze"
	stepWipe         = "wipe"
	stepStatusUpdate = "status_update"
	stepStatusRead   = "status_read"
)

// Accounts holding at least this many tokens have exhausted their free
// automatic association slots and need an explicit association before a
// transfer can succeed.
const autoAssociateThreshold = 10

// submitTransaction is the envelope shared by every asset step: request an
// unsigned transaction from the signer gateway, sign it with the operator
// wallet, submit it to the ledger, and wait for the receipt. No local state
// is mutated before the receipt reports success, so a failed step is always
// safe to retry.
func (s *Service) submitTransaction(ctx context.Context, step string, request func(ctx context.Context) ([]byte, error)) (*Receipt, error) {
	body, err := request(ctx)
	if err != nil {
		s.m.StepFailures.WithLabelValues(step).Inc()
		return nil, &RemoteOperationError{Step: step, cause: err}
	}

	signature, err := s.wallet.Sign(body)
	if err != nil {
		s.m.StepFailures.WithLabelValues(step).Inc()
		return nil, &RemoteOperationError{Step: step, cause: err}
	}

	receipt, err := s.ledger.Submit(ctx, body, signature)
	if err != nil {
		s.m.StepFailures.WithLabelValues(step).Inc()
		return nil, &RemoteOperationError{Step: step, cause: err}
	}
	if receipt.Status != ReceiptSuccess {
		s.m.StepFailures.WithLabelValues(step).Inc()
		return nil, &TransactionError{Step: step, Status: receipt.Status}
	}

	s.m.StepsSubmitted.WithLabelValues(step).Inc()
	return receipt, nil
}

// registerStatusSlot claims a slot in the issuer's revocation status list.
// It runs exactly once per credential, before the record is created, so a
// failed registration leaves nothing behind.
func (s *Service) registerStatusSlot(ctx context.Context, issuer models.Issuer) (string, int64, error) {
	fileID, index, err := s.signer.RegisterStatusSlot(ctx, issuer.DID)
	if err != nil {
		s.m.StepFailures.WithLabelValues(stepRegister).Inc()
		return "", 0, &RemoteOperationError{Step: stepRegister, cause: err}
	}
	s.logger.Info("Registered status list slot",
		zap.String("issuerDID", issuer.DID),
		zap.String("fileID", fileID),
		zap.Int64("index", index))
	return fileID, index, nil
}

// assetMetadata is the document pinned to the metadata store. The claims
// are encrypted; only the image reference stays in the clear.
type assetMetadata struct {
	Image     string `json:"image"`
	Encrypted []byte `json:"encrypted"`
}

// mint encrypts the credential metadata, pins it, and mints the NFT that
// will carry it. The receipt's serial number binds the credential to the
// asset. Skipped entirely if the credential is already past PENDING.
func (s *Service) mint(ctx context.Context, cred *models.Credential, issuer models.Issuer, claims map[string]interface{}) error {
	if cred.InternalStatus != models.StatusPending {
		s.m.StepsSkipped.WithLabelValues(stepMint).Inc()
		return nil
	}

	plaintext, err := json.Marshal(claims)
	if err != nil {
		return &ValidationError{"credential metadata is not serializable"}
	}
	ciphertext, nonce, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return &RemoteOperationError{Step: stepMint, cause: err}
	}

	cid, err := s.pinner.PinJSON(ctx, cred.ID, assetMetadata{
		Image:     issuer.ImageURL,
		Encrypted: ciphertext,
	})
	if err != nil {
		s.m.StepFailures.WithLabelValues(stepMint).Inc()
		return &RemoteOperationError{Step: stepMint, cause: err}
	}

	receipt, err := s.submitTransaction(ctx, stepMint, func(ctx context.Context) ([]byte, error) {
		return s.signer.MintTransaction(ctx, issuer.TokenID, cid)
	})
	if err != nil {
		return err
	}
	if receipt.Serial == "" {
		return &TransactionError{Step: stepMint, Status: "MISSING_SERIAL"}
	}

	cred.AssetSerial = receipt.Serial
	cred.EncryptionIV = nonce
	cred.InternalStatus = models.StatusMinted
	if err := s.updateCredential(ctx, cred); err != nil {
		return err
	}

	s.logger.Info("Minted credential asset",
		zap.String("credentialID", cred.ID),
		zap.String("tokenID", issuer.TokenID),
		zap.String("serial", cred.AssetSerial),
		zap.String("cid", cid))
	return nil
}

// deliver transfers the asset from issuer custody into the holder's wallet.
// If the wallet already holds the asset, only the checkpoint advances; no
// transaction is submitted.
func (s *Service) deliver(ctx context.Context, cred *models.Credential, issuer models.Issuer, walletID string) error {
	owner, err := s.ledger.AssetOwner(ctx, issuer.TokenID, cred.AssetSerial)
	if err != nil {
		s.m.StepFailures.WithLabelValues(stepDeliver).Inc()
		return &RemoteOperationError{Step: stepDeliver, cause: err}
	}

	if owner != walletID {
		// Wallets past the auto-association limit need an explicit
		// association bundled with the transfer.
		count, err := s.ledger.TokenCount(ctx, walletID)
		if err != nil {
			s.m.StepFailures.WithLabelValues(stepDeliver).Inc()
			return &RemoteOperationError{Step: stepDeliver, cause: err}
		}

		_, err = s.submitTransaction(ctx, stepDeliver, func(ctx context.Context) ([]byte, error) {
			return s.signer.TransferTransaction(ctx, TransferRequest{
				TokenID:   issuer.TokenID,
				Serial:    cred.AssetSerial,
				SenderID:  issuer.AccountID,
				WalletID:  walletID,
				Associate: count >= autoAssociateThreshold,
			})
		})
		if err != nil {
			return err
		}
	} else {
		s.m.StepsSkipped.WithLabelValues(stepDeliver).Inc()
	}

	cred.InternalStatus = models.StatusDelivered
	if err := s.updateCredential(ctx, cred); err != nil {
		return err
	}

	s.logger.Info("Delivered credential asset",
		zap.String("credentialID", cred.ID),
		zap.String("walletID", walletID),
		zap.String("serial", cred.AssetSerial))
	return nil
}

// freeze locks the asset in the holder's wallet so it cannot be
// transferred. Skips the transaction if the ledger already reports the
// pair frozen. When called on a DELIVERED credential it advances the
// checkpoint to ACTIVE; during revocation it re-freezes the emptied slot
// without touching the checkpoint.
func (s *Service) freeze(ctx context.Context, cred *models.Credential, issuer models.Issuer, walletID string) error {
	state, err := s.ledger.FreezeStatus(ctx, issuer.TokenID, walletID)
	if err != nil {
		s.m.StepFailures.WithLabelValues(stepFreeze).Inc()
		return &RemoteOperationError{Step: stepFreeze, cause: err}
	}

	if state != Frozen {
		_, err := s.submitTransaction(ctx, stepFreeze, func(ctx context.Context) ([]byte, error) {
			return s.signer.FreezeTransaction(ctx, issuer.TokenID, walletID)
		})
		if err != nil {
			return err
		}
	} else {
		s.m.StepsSkipped.WithLabelValues(stepFreeze).Inc()
	}

	if cred.InternalStatus == models.StatusDelivered {
		cred.InternalStatus = models.StatusActive
		if err := s.updateCredential(ctx, cred); err != nil {
			return err
		}
	}

	s.logger.Info("Froze credential asset",
		zap.String("credentialID", cred.ID),
		zap.String("walletID", walletID))
	return nil
}

// unfreeze unlocks the asset ahead of a wipe. Skips the transaction when
// the token is not associated with the wallet or is already unfrozen.
// Never changes the checkpoint.
func (s *Service) unfreeze(ctx context.Context, cred *models.Credential, issuer models.Issuer, walletID string) error {
	state, err := s.ledger.FreezeStatus(ctx, issuer.TokenID, walletID)
	if err != nil {
		s.m.StepFailures.WithLabelValues(stepUnfreeze).Inc()
		return &RemoteOperationError{Step: stepUnfreeze, cause: err}
	}

	if state == NotAssociated || state == Unfrozen {
		s.m.StepsSkipped.WithLabelValues(stepUnfreeze).Inc()
		return nil
	}

	_, err = s.submitTransaction(ctx, stepUnfreeze, func(ctx context.Context) ([]byte, error) {
		return s.signer.UnfreezeTransaction(ctx, issuer.TokenID, walletID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Unfroze credential asset",
		zap.String("credentialID", cred.ID),
		zap.String("walletID", walletID))
	return nil
}

// wipe destroys the asset in the holder's wallet and marks the credential
// burned. The record itself is never deleted.
func (s *Service) wipe(ctx context.Context, cred *models.Credential, issuer models.Issuer, walletID string) error {
	_, err := s.submitTransaction(ctx, stepWipe, func(ctx context.Context) ([]byte, error) {
		return s.signer.WipeTransaction(ctx, issuer.TokenID, cred.AssetSerial, walletID)
	})
	if err != nil {
		return err
	}

	cred.InternalStatus = models.StatusBurned
	if err := s.updateCredential(ctx, cred); err != nil {
		return err
	}

	s.logger.Info("Wiped credential asset",
		zap.String("credentialID", cred.ID),
		zap.String("walletID", walletID),
		zap.String("serial", cred.AssetSerial))
	return nil
}
