package registry

import (
	"fmt"
	"strings"

	kiterr "github.com/kibankit/kiban-agent-kit/internal/errors"
)

// Canonical default EVM RPC endpoints by chain ID.
// These values are used whenever no rpc_url is configured.
var defaultRPCByChainID = map[int64]string{
	1:     "https://eth.llamarpc.com",
	10:    "https://mainnet.optimism.io",
	8453:  "https://mainnet.base.org",
	42161: "https://arb1.arbitrum.io/rpc",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	value, ok := defaultRPCByChainID[chainID]
	return value, ok
}

func ResolveRPCURL(override string, chainID int64) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if value, ok := DefaultRPCURL(chainID); ok {
		return value, nil
	}
	return "", kiterr.New(kiterr.CodeConfig, fmt.Sprintf("no default rpc configured for chain id %d; provide rpc_url", chainID))
}
