// Package svm implements the chain.Adapter capability for Solana networks.
// Unlike EVM, the settlement result does not carry a trustworthy payer, so
// both payer recovery and refund construction work from the client's original
// signed transaction: the SPL token transfer instruction inside it names the
// payer's token account, the merchant's token account, and the owner wallet.
package svm

import (
	"fmt"

	x402 "github.com/caasxyz/x402-echo-merchant"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// TransferContext is everything the refund leg needs from the original
// payment transaction. Built once per settled payment and discarded after the
// refund is submitted.
type TransferContext struct {
	// Source is the payer's token account, the refund destination.
	Source solana.PublicKey

	// Destination is the merchant's token account the payment landed in.
	Destination solana.PublicKey

	// Owner is the payer's wallet, the authority over Source.
	Owner solana.PublicKey

	// Mint and Decimals are set when the payment used TransferChecked.
	Mint     solana.PublicKey
	Decimals uint8
	Checked  bool

	// TokenProgram is the program the transfer ran under.
	TokenProgram solana.PublicKey

	// Amount is the transferred amount in atomic units.
	Amount uint64
}

// ExtractTransferContext locates the token transfer instruction in a payment
// transaction and decodes its accounts. The instruction is found by program id
// and opcode, not by position: clients are free to prepend compute-budget or
// memo instructions, so a fixed index would mis-parse any transaction with an
// unexpected instruction ordering.
func ExtractTransferContext(tx *solana.Transaction) (*TransferContext, error) {
	for _, inst := range tx.Message.Instructions {
		prog, err := tx.Message.ResolveProgramIDIndex(inst.ProgramIDIndex)
		if err != nil {
			continue
		}
		if !prog.Equals(solana.TokenProgramID) {
			continue
		}

		accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			return nil, fmt.Errorf("resolve instruction accounts: %w", err)
		}
		decoded, err := token.DecodeInstruction(accounts, inst.Data)
		if err != nil {
			continue
		}

		switch t := decoded.Impl.(type) {
		case *token.Transfer:
			return &TransferContext{
				Source:       t.GetSourceAccount().PublicKey,
				Destination:  t.GetDestinationAccount().PublicKey,
				Owner:        t.GetOwnerAccount().PublicKey,
				TokenProgram: prog,
				Amount:       deref(t.Amount),
			}, nil
		case *token.TransferChecked:
			return &TransferContext{
				Source:       t.GetSourceAccount().PublicKey,
				Destination:  t.GetDestinationAccount().PublicKey,
				Owner:        t.GetOwnerAccount().PublicKey,
				Mint:         t.GetMintAccount().PublicKey,
				Decimals:     deref(t.Decimals),
				Checked:      true,
				TokenProgram: prog,
				Amount:       deref(t.Amount),
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: no token transfer instruction in payment transaction", x402.ErrRefundFailed)
}

// DecodePaymentTransaction parses the base64 transaction out of an SVM proof.
func DecodePaymentTransaction(payment x402.PaymentPayload) (*solana.Transaction, error) {
	payload, err := payment.SVMPayload()
	if err != nil {
		return nil, err
	}
	tx, err := solana.TransactionFromBase64(payload.Transaction)
	if err != nil {
		return nil, fmt.Errorf("decode payment transaction: %w", err)
	}
	return tx, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
