package types

import (
	"fmt"

	"github.com/gagliardetto/solana-go/rpc"
)

// Network represents a supported Solana cluster
type Network string

const (
	NetworkSolanaMainnet Network = "solana-mainnet"
	NetworkSolanaDevnet  Network = "solana-devnet" // testnet
	NetworkSolanaTestnet Network = "solana-testnet"
	NetworkSolanaLocal   Network = "solana-localnet"
)

// DefaultRPCUrl returns the public endpoint of the cluster.
func (n Network) DefaultRPCUrl() (string, error) {
	switch n {
	case NetworkSolanaMainnet:
		return rpc.MainNetBeta_RPC, nil
	case NetworkSolanaDevnet:
		return rpc.DevNet_RPC, nil
	case NetworkSolanaTestnet:
		return rpc.TestNet_RPC, nil
	case NetworkSolanaLocal:
		return rpc.LocalNet_RPC, nil
	default:
		return "", fmt.Errorf("unsupported network: %s", n)
	}
}

func (n Network) IsTestnet() bool {
	return n == NetworkSolanaDevnet || n == NetworkSolanaTestnet || n == NetworkSolanaLocal
}

func (n Network) String() string {
	return string(n)
}
