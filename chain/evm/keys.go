package evm

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	x402 "github.com/caasxyz/x402-echo-merchant"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// Option configures the refund signing key of an Adapter.
type Option func(*Adapter) error

// WithPrivateKey loads the refund key from a hex string, with or without the
// 0x prefix.
func WithPrivateKey(hexKey string) Option {
	return func(a *Adapter) error {
		priv, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return x402.ErrInvalidKey
		}
		a.key = newSigningKey(priv)
		return nil
	}
}

// WithKeystore loads the refund key from an encrypted geth keystore file.
func WithKeystore(path, password string) Option {
	return func(a *Adapter) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: %v", x402.ErrInvalidKeystore, err)
		}

		var keyJSON struct {
			Crypto keystore.CryptoJSON `json:"crypto"`
		}
		if err := json.Unmarshal(data, &keyJSON); err != nil {
			return fmt.Errorf("%w: invalid JSON", x402.ErrInvalidKeystore)
		}

		keyBytes, err := keystore.DecryptDataV3(keyJSON.Crypto, password)
		if err != nil {
			return fmt.Errorf("%w: decryption failed", x402.ErrInvalidKeystore)
		}

		priv, err := crypto.ToECDSA(keyBytes)
		if err != nil {
			return fmt.Errorf("%w: not a valid secp256k1 key", x402.ErrInvalidKeystore)
		}
		a.key = newSigningKey(priv)
		return nil
	}
}

// WithMnemonic derives the refund key from a BIP-39 mnemonic at the BIP-44
// path m/44'/60'/0'/0/{accountIndex}.
func WithMnemonic(mnemonic string, accountIndex uint32) Option {
	return func(a *Adapter) error {
		if !bip39.IsMnemonicValid(mnemonic) {
			return x402.ErrInvalidMnemonic
		}
		priv, err := deriveKey(bip39.NewSeed(mnemonic, ""), accountIndex)
		if err != nil {
			return fmt.Errorf("%w: %v", x402.ErrInvalidMnemonic, err)
		}
		a.key = newSigningKey(priv)
		return nil
	}
}

// deriveKey walks the BIP-44 Ethereum path m/44'/60'/0'/0/{index}.
func deriveKey(seed []byte, index uint32) (*ecdsa.PrivateKey, error) {
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	for _, step := range []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + 60,
		bip32.FirstHardenedChild + 0,
		0,
		index,
	} {
		if key, err = key.NewChildKey(step); err != nil {
			return nil, err
		}
	}
	return crypto.ToECDSA(key.Key)
}
