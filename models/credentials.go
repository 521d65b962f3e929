package models

import (
	"time"
)

// InternalStatus is the service's own step-completion checkpoint for a
// credential. It only ever moves forward, and it is the single field the
// issue flow trusts when deciding which asset steps remain.
type InternalStatus string

const (
	StatusPending   InternalStatus = "PENDING"
	StatusMinted    InternalStatus = "MINTED"
	StatusDelivered InternalStatus = "DELIVERED"
	StatusActive    InternalStatus = "ACTIVE"
	StatusBurned    InternalStatus = "BURNED"
)

// ChainStatus mirrors the authoritative revocation-list entry on the ledger.
// It is refreshed by decoding the issuer's status list and is independent of
// InternalStatus.
type ChainStatus string

const (
	ChainActive    ChainStatus = "ACTIVE"
	ChainResumed   ChainStatus = "RESUMED"
	ChainSuspended ChainStatus = "SUSPENDED"
	ChainRevoked   ChainStatus = "REVOKED"
	ChainExpired   ChainStatus = "EXPIRED"
)

// SerialToBeMinted is the AssetSerial placeholder for credentials whose NFT
// has not been minted yet.
const SerialToBeMinted = "to_be_minted"

// Credential is one verifiable credential bound 1:1 to an NFT serial.
// Owner, Issuer, and the status list slot are immutable after creation.
// AssetSerial is assigned exactly once, by the mint step.
type Credential struct {
	ID               string
	Owner            string
	Issuer           string
	StatusListFileID string
	StatusListIndex  int64
	AssetSerial      string
	EncryptionIV     []byte
	InternalStatus   InternalStatus
	ChainStatus      ChainStatus
	ExpirationDate   time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Minted reports whether the credential's NFT exists on the ledger.
func (c *Credential) Minted() bool {
	return c.AssetSerial != SerialToBeMinted
}
