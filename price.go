package x402

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Price is what a route charges. Either Money is set (a dollar string
// such as "$0.01", resolved against the network's USDC asset) or Atomic is set
// (an explicit atomic amount and asset descriptor).
type Price struct {
	Money  string       `json:"money,omitempty"`
	Atomic *AtomicPrice `json:"atomic,omitempty"`
}

// AtomicPrice is an explicit price in atomic units of a specific asset.
type AtomicPrice struct {
	Amount string      `json:"amount"`
	Asset  AssetConfig `json:"asset"`
}

// AssetConfig describes the asset an atomic price is denominated in.
type AssetConfig struct {
	Address       string `json:"address"`
	Decimals      int    `json:"decimals"`
	EIP712Name    string `json:"eip712Name,omitempty"`
	EIP712Version string `json:"eip712Version,omitempty"`
}

// USD builds a dollar-denominated price.
func USD(money string) Price { return Price{Money: money} }

// Resolve converts the price to an atomic amount and asset for the given
// network. Dollar prices resolve against the network's USDC entry in the chain
// table; a network without an entry yields a *PriceError.
func (p Price) Resolve(networkID string) (amount string, asset AssetConfig, err error) {
	if p.Atomic != nil {
		d, derr := decimal.NewFromString(p.Atomic.Amount)
		if derr != nil || d.Sign() < 0 || !d.IsInteger() {
			return "", AssetConfig{}, &PriceError{Network: networkID, Reason: "atomic amount must be a non-negative integer"}
		}
		return p.Atomic.Amount, p.Atomic.Asset, nil
	}

	chain, ok := ChainByNetwork(networkID)
	if !ok {
		return "", AssetConfig{}, &PriceError{Network: networkID, Reason: "no asset entry for network"}
	}

	d, derr := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(p.Money), "$"))
	if derr != nil {
		return "", AssetConfig{}, &PriceError{Network: networkID, Reason: "malformed money amount " + p.Money}
	}
	if d.Sign() < 0 {
		return "", AssetConfig{}, &PriceError{Network: networkID, Reason: "negative amount"}
	}

	shifted := d.Shift(int32(chain.USDCDecimals))
	if !shifted.IsInteger() {
		return "", AssetConfig{}, &PriceError{Network: networkID, Reason: "amount has more precision than the asset supports"}
	}

	return shifted.String(), AssetConfig{
		Address:       chain.USDCAddress,
		Decimals:      chain.USDCDecimals,
		EIP712Name:    chain.EIP712Name,
		EIP712Version: chain.EIP712Version,
	}, nil
}

// Display returns the human-readable amount for paywall rendering, e.g. 0.01
// for "$0.01". Atomic prices are scaled down by the asset's decimals.
func (p Price) Display() float64 {
	if p.Atomic != nil {
		d, err := decimal.NewFromString(p.Atomic.Amount)
		if err != nil {
			return 0
		}
		f, _ := d.Shift(int32(-p.Atomic.Asset.Decimals)).Float64()
		return f
	}
	d, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(p.Money), "$"))
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
