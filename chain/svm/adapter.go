package svm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	x402 "github.com/caasxyz/x402-echo-merchant"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// Adapter implements chain.Adapter for one Solana network. The refund account
// must own the token account the original payment was delivered to.
type Adapter struct {
	chain  x402.ChainConfig
	rpcURL string
	key    solana.PrivateKey
	pub    solana.PublicKey

	clientOnce sync.Once
	client     *rpc.Client
}

// Option configures an Adapter.
type Option func(*Adapter) error

// WithPrivateKey loads the refund key from a base58 string.
func WithPrivateKey(base58Key string) Option {
	return func(a *Adapter) error {
		key, err := solana.PrivateKeyFromBase58(base58Key)
		if err != nil {
			return x402.ErrInvalidKey
		}
		a.key = key
		return nil
	}
}

// WithKeygenFile loads the refund key from a solana-keygen JSON file.
func WithKeygenFile(path string) Option {
	return func(a *Adapter) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: %v", x402.ErrInvalidKeystore, err)
		}
		var keyBytes []byte
		if err := json.Unmarshal(data, &keyBytes); err != nil {
			return fmt.Errorf("%w: invalid JSON", x402.ErrInvalidKeystore)
		}
		if len(keyBytes) != 64 {
			return fmt.Errorf("%w: want 64 key bytes, got %d", x402.ErrInvalidKeystore, len(keyBytes))
		}
		a.key = solana.PrivateKey(keyBytes)
		return nil
	}
}

// NewAdapter builds an adapter for network backed by the RPC node at rpcURL.
func NewAdapter(network, rpcURL string, opts ...Option) (*Adapter, error) {
	chainCfg, ok := x402.ChainByNetwork(network)
	if !ok || !chainCfg.IsSVM() {
		return nil, fmt.Errorf("%w: %s is not an SVM network", x402.ErrUnsupportedNetwork, network)
	}
	if rpcURL == "" {
		return nil, fmt.Errorf("svm adapter %s: rpc URL must not be empty", network)
	}

	a := &Adapter{chain: chainCfg, rpcURL: rpcURL}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if len(a.key) == 0 {
		return nil, x402.ErrInvalidKey
	}
	a.pub = a.key.PublicKey()
	return a, nil
}

// Network implements chain.Adapter.
func (a *Adapter) Network() string { return a.chain.NetworkID }

// Address returns the refund wallet as a base58 string.
func (a *Adapter) Address() string { return a.pub.String() }

// RecoverPayer implements chain.Adapter by decoding the original transaction
// and reading the owner wallet out of its token transfer instruction.
func (a *Adapter) RecoverPayer(payment x402.PaymentPayload) (string, error) {
	tx, err := DecodePaymentTransaction(payment)
	if err != nil {
		return "", err
	}
	transfer, err := ExtractTransferContext(tx)
	if err != nil {
		return "", err
	}
	return transfer.Owner.String(), nil
}

// SubmitRefund implements chain.Adapter. The original transfer is reversed:
// funds move from the merchant token account the payment landed in back to the
// payer's token account, signed by the refund wallet as authority.
func (a *Adapter) SubmitRefund(ctx context.Context, _ string, _ x402.PaymentRequirement, payment x402.PaymentPayload) (string, error) {
	tx, err := DecodePaymentTransaction(payment)
	if err != nil {
		return "", err
	}
	transfer, err := ExtractTransferContext(tx)
	if err != nil {
		return "", err
	}

	inst, err := a.buildReverseTransfer(transfer)
	if err != nil {
		return "", err
	}

	client := a.rpc()
	blockhash, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("fetch blockhash: %w", err)
	}

	refundTx, err := solana.NewTransaction(
		[]solana.Instruction{inst},
		blockhash.Value.Blockhash,
		solana.TransactionPayer(a.pub),
	)
	if err != nil {
		return "", fmt.Errorf("build refund transaction: %w", err)
	}

	if _, err := refundTx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(a.pub) {
			return &a.key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign refund transaction: %w", err)
	}

	sig, err := client.SendTransaction(ctx, refundTx)
	if err != nil {
		return "", fmt.Errorf("send refund transaction: %w", err)
	}
	return sig.String(), nil
}

// buildReverseTransfer swaps the source and destination of the original
// transfer. TransferChecked payments are reversed as TransferChecked so the
// mint and decimals are re-validated on chain.
func (a *Adapter) buildReverseTransfer(transfer *TransferContext) (solana.Instruction, error) {
	if transfer.Amount == 0 {
		return nil, fmt.Errorf("%w: original transfer amount is zero", x402.ErrRefundFailed)
	}
	if transfer.Checked {
		return token.NewTransferCheckedInstruction(
			transfer.Amount,
			transfer.Decimals,
			transfer.Destination,
			transfer.Mint,
			transfer.Source,
			a.pub,
			nil,
		).Build(), nil
	}
	return token.NewTransferInstruction(
		transfer.Amount,
		transfer.Destination,
		transfer.Source,
		a.pub,
		nil,
	).Build(), nil
}

func (a *Adapter) rpc() *rpc.Client {
	a.clientOnce.Do(func() {
		a.client = rpc.New(a.rpcURL)
	})
	return a.client
}
