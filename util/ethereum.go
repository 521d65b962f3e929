package util

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet holds the node operator's signing key. Every transaction returned
// by the signer gateway is signed with it before submission to the ledger.
type Wallet struct {
	Address *common.Address
	Key     *ecdsa.PrivateKey
}

// NewWallet generates a wallet with a random private key.
func NewWallet() (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	address := crypto.PubkeyToAddress(key.PublicKey)
	return &Wallet{
		Address: &address,
		Key:     key,
	}, nil
}

// NewWalletFromHex loads a wallet from a hex-encoded private key, with or
// without a 0x prefix.
func NewWalletFromHex(keyHex string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, err
	}
	address := crypto.PubkeyToAddress(key.PublicKey)
	return &Wallet{
		Address: &address,
		Key:     key,
	}, nil
}

// Sign signs the Keccak256 hash of the payload with the wallet's private key.
// Returns a 65-byte [R || S || V] signature with V in {0, 1}.
func (w *Wallet) Sign(payload []byte) ([]byte, error) {
	return crypto.Sign(crypto.Keccak256(payload), w.Key)
}
