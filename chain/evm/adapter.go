// Package evm implements the chain.Adapter capability for Ethereum-compatible
// networks: payer recovery from EIP-3009 authorizations and ERC-20 refund
// transfers from the operator's refund account.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	x402 "github.com/caasxyz/x402-echo-merchant"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20TransferABI = `[{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`

// fallbackGasLimit is used when gas estimation fails; a plain ERC-20 transfer
// stays well under it.
const fallbackGasLimit = 120_000

var transferABI = mustParseABI(erc20TransferABI)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Adapter implements chain.Adapter for one EVM network.
type Adapter struct {
	chain  x402.ChainConfig
	rpcURL string
	key    *signingKey

	dialOnce sync.Once
	client   *ethclient.Client
	dialErr  error
}

// NewAdapter builds an adapter for network backed by the RPC node at rpcURL.
// Exactly one key option must be supplied.
func NewAdapter(network, rpcURL string, opts ...Option) (*Adapter, error) {
	chainCfg, ok := x402.ChainByNetwork(network)
	if !ok || !chainCfg.IsEVM() {
		return nil, fmt.Errorf("%w: %s is not an EVM network", x402.ErrUnsupportedNetwork, network)
	}
	if rpcURL == "" {
		return nil, fmt.Errorf("evm adapter %s: rpc URL must not be empty", network)
	}

	a := &Adapter{chain: chainCfg, rpcURL: rpcURL}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.key == nil {
		return nil, x402.ErrInvalidKey
	}
	return a, nil
}

// Network implements chain.Adapter.
func (a *Adapter) Network() string { return a.chain.NetworkID }

// Address returns the refund account address.
func (a *Adapter) Address() common.Address { return a.key.address }

// RecoverPayer implements chain.Adapter. The payer is the from address of the
// EIP-3009 transfer authorization inside the proof.
func (a *Adapter) RecoverPayer(payment x402.PaymentPayload) (string, error) {
	payload, err := payment.EVMPayload()
	if err != nil {
		return "", err
	}
	from := payload.Authorization.From
	if !common.IsHexAddress(from) {
		return "", fmt.Errorf("%w: authorization from %q", x402.ErrInvalidAddress, from)
	}
	return common.HexToAddress(from).Hex(), nil
}

// SubmitRefund implements chain.Adapter. It transfers exactly
// requirement.MaxAmountRequired of the settled token from the refund account
// to the recipient and returns the transaction hash without waiting for
// inclusion.
func (a *Adapter) SubmitRefund(ctx context.Context, recipient string, requirement x402.PaymentRequirement, _ x402.PaymentPayload) (string, error) {
	if !common.IsHexAddress(recipient) {
		return "", fmt.Errorf("%w: refund recipient %q", x402.ErrInvalidAddress, recipient)
	}
	if !common.IsHexAddress(requirement.Asset) {
		return "", fmt.Errorf("%w: asset %q", x402.ErrInvalidAddress, requirement.Asset)
	}
	amount, ok := new(big.Int).SetString(requirement.MaxAmountRequired, 10)
	if !ok {
		return "", fmt.Errorf("%w: %q", x402.ErrInvalidAmount, requirement.MaxAmountRequired)
	}

	client, err := a.dial()
	if err != nil {
		return "", err
	}

	to := common.HexToAddress(recipient)
	token := common.HexToAddress(requirement.Asset)

	calldata, err := transferABI.Pack("transfer", to, amount)
	if err != nil {
		return "", fmt.Errorf("pack transfer calldata: %w", err)
	}

	nonce, err := client.PendingNonceAt(ctx, a.key.address)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	gasLimit := uint64(fallbackGasLimit)
	if estimated, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From: a.key.address,
		To:   &token,
		Data: calldata,
	}); err == nil {
		gasLimit = estimated
	}

	tx := types.NewTransaction(nonce, token, big.NewInt(0), gasLimit, gasPrice, calldata)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(a.chain.ChainID)), a.key.priv)
	if err != nil {
		return "", fmt.Errorf("sign refund transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send refund transaction: %w", err)
	}
	return signed.Hash().Hex(), nil
}

func (a *Adapter) dial() (*ethclient.Client, error) {
	a.dialOnce.Do(func() {
		a.client, a.dialErr = ethclient.Dial(a.rpcURL)
	})
	if a.dialErr != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", a.chain.NetworkID, a.dialErr)
	}
	return a.client, nil
}

// signingKey pairs an ECDSA key with its derived address.
type signingKey struct {
	priv    *ecdsa.PrivateKey
	address common.Address
}

func newSigningKey(priv *ecdsa.PrivateKey) *signingKey {
	return &signingKey{priv: priv, address: crypto.PubkeyToAddress(priv.PublicKey)}
}
