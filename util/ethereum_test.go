package util

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletSign(t *testing.T) {
	wallet, err := NewWallet()
	require.NoError(t, err)

	payload := []byte("some transaction body")
	sig, err := wallet.Sign(payload)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	// The signature must recover to the wallet's own address.
	pub, err := crypto.SigToPub(crypto.Keccak256(payload), sig)
	require.NoError(t, err)
	assert.Equal(t, *wallet.Address, crypto.PubkeyToAddress(*pub))
}

func TestNewWalletFromHex(t *testing.T) {
	wallet, err := NewWallet()
	require.NoError(t, err)
	keyHex := hex.EncodeToString(crypto.FromECDSA(wallet.Key))

	loaded, err := NewWalletFromHex(keyHex)
	require.NoError(t, err)
	assert.Equal(t, wallet.Address, loaded.Address)

	// A 0x prefix is tolerated.
	prefixed, err := NewWalletFromHex("0x" + keyHex)
	require.NoError(t, err)
	assert.Equal(t, wallet.Address, prefixed.Address)

	_, err = NewWalletFromHex("not-a-key")
	assert.Error(t, err)
}
