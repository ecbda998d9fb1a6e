// Package x402 holds the protocol types and chain configuration shared by the
// echo merchant's payment gate, facilitator client, and refund path. The chain
// table lists every network the demo accepts payments on, with the Circle USDC
// asset used for pricing and the block explorer used in receipt pages.
package x402

// NetworkType is the blockchain virtual machine family of a network.
type NetworkType int

const (
	// NetworkTypeUnknown is an unrecognized network.
	NetworkTypeUnknown NetworkType = iota
	// NetworkTypeEVM covers Ethereum-compatible, account-based chains.
	NetworkTypeEVM
	// NetworkTypeSVM covers Solana-family, instruction-based chains.
	NetworkTypeSVM
)

// ChainConfig is the static per-network configuration the merchant needs:
// which family the network belongs to, the USDC asset used to resolve dollar
// prices, and where settled transactions can be viewed.
type ChainConfig struct {
	// NetworkID is the x402 network identifier (e.g., "base", "solana-devnet").
	NetworkID string

	// Type is the virtual machine family this network belongs to.
	Type NetworkType

	// ChainID is the EVM chain id; zero for SVM networks.
	ChainID int64

	// USDCAddress is the Circle USDC contract address or mint address.
	USDCAddress string

	// USDCDecimals is the decimal count of USDC on this network (always 6).
	USDCDecimals int

	// EIP712Name and EIP712Version are the EIP-712 domain parameters of the
	// USDC contract, required for EIP-3009 signatures. Empty on SVM networks.
	EIP712Name    string
	EIP712Version string

	// ExplorerTxURL is the block explorer transaction URL prefix.
	ExplorerTxURL string

	// Testnet marks non-mainnet networks.
	Testnet bool
}

// IsEVM reports whether this network is an EVM-family chain.
func (c ChainConfig) IsEVM() bool { return c.Type == NetworkTypeEVM }

// IsSVM reports whether this network is a Solana-family chain.
func (c ChainConfig) IsSVM() bool { return c.Type == NetworkTypeSVM }

// Supported networks. USDC addresses and EIP-712 parameters verified against
// Circle's published deployments.
var (
	Base = ChainConfig{
		NetworkID:     "base",
		Type:          NetworkTypeEVM,
		ChainID:       8453,
		USDCAddress:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		USDCDecimals:  6,
		EIP712Name:    "USD Coin",
		EIP712Version: "2",
		ExplorerTxURL: "https://basescan.org/tx/",
	}

	BaseSepolia = ChainConfig{
		NetworkID:     "base-sepolia",
		Type:          NetworkTypeEVM,
		ChainID:       84532,
		USDCAddress:   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		USDCDecimals:  6,
		EIP712Name:    "USDC",
		EIP712Version: "2",
		ExplorerTxURL: "https://sepolia.basescan.org/tx/",
		Testnet:       true,
	}

	Polygon = ChainConfig{
		NetworkID:     "polygon",
		Type:          NetworkTypeEVM,
		ChainID:       137,
		USDCAddress:   "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		USDCDecimals:  6,
		EIP712Name:    "USD Coin",
		EIP712Version: "2",
		ExplorerTxURL: "https://polygonscan.com/tx/",
	}

	PolygonAmoy = ChainConfig{
		NetworkID:     "polygon-amoy",
		Type:          NetworkTypeEVM,
		ChainID:       80002,
		USDCAddress:   "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
		USDCDecimals:  6,
		EIP712Name:    "USDC",
		EIP712Version: "2",
		ExplorerTxURL: "https://amoy.polygonscan.com/tx/",
		Testnet:       true,
	}

	Avalanche = ChainConfig{
		NetworkID:     "avalanche",
		Type:          NetworkTypeEVM,
		ChainID:       43114,
		USDCAddress:   "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
		USDCDecimals:  6,
		EIP712Name:    "USD Coin",
		EIP712Version: "2",
		ExplorerTxURL: "https://snowtrace.io/tx/",
	}

	AvalancheFuji = ChainConfig{
		NetworkID:     "avalanche-fuji",
		Type:          NetworkTypeEVM,
		ChainID:       43113,
		USDCAddress:   "0x5425890298aed601595a70AB815c96711a31Bc65",
		USDCDecimals:  6,
		EIP712Name:    "USD Coin",
		EIP712Version: "2",
		ExplorerTxURL: "https://testnet.snowtrace.io/tx/",
		Testnet:       true,
	}

	Solana = ChainConfig{
		NetworkID:     "solana",
		Type:          NetworkTypeSVM,
		USDCAddress:   "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		USDCDecimals:  6,
		ExplorerTxURL: "https://solscan.io/tx/",
	}

	SolanaDevnet = ChainConfig{
		NetworkID:     "solana-devnet",
		Type:          NetworkTypeSVM,
		USDCAddress:   "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		USDCDecimals:  6,
		ExplorerTxURL: "https://solscan.io/tx/",
		Testnet:       true,
	}
)

var chains = map[string]ChainConfig{
	Base.NetworkID:          Base,
	BaseSepolia.NetworkID:   BaseSepolia,
	Polygon.NetworkID:       Polygon,
	PolygonAmoy.NetworkID:   PolygonAmoy,
	Avalanche.NetworkID:     Avalanche,
	AvalancheFuji.NetworkID: AvalancheFuji,
	Solana.NetworkID:        Solana,
	SolanaDevnet.NetworkID:  SolanaDevnet,
}

// ChainByNetwork looks up the chain configuration for a network identifier.
func ChainByNetwork(networkID string) (ChainConfig, bool) {
	c, ok := chains[networkID]
	return c, ok
}

// Networks returns the identifiers of all supported networks.
func Networks() []string {
	ids := make([]string, 0, len(chains))
	for id := range chains {
		ids = append(ids, id)
	}
	return ids
}

// NetworkTypeOf returns the family of a network, or NetworkTypeUnknown.
func NetworkTypeOf(networkID string) NetworkType {
	c, ok := chains[networkID]
	if !ok {
		return NetworkTypeUnknown
	}
	return c.Type
}

// ExplorerTxLink builds a block explorer link for a transaction, or returns the
// bare transaction id when the network has no configured explorer.
func ExplorerTxLink(networkID, tx string) string {
	c, ok := chains[networkID]
	if !ok || tx == "" {
		return tx
	}
	link := c.ExplorerTxURL + tx
	// Solscan needs the cluster qualifier for devnet transactions.
	if networkID == SolanaDevnet.NetworkID {
		link += "?cluster=devnet"
	}
	return link
}
