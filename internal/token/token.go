package token

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	kiterr "github.com/kibankit/kiban-agent-kit/internal/errors"
	"github.com/kibankit/kiban-agent-kit/internal/registry"
)

// Ref identifies a token as either the native asset, a known symbol, or a
// literal contract address. The zero value is not valid; construct through
// Resolver.Parse.
type Ref struct {
	Symbol  string
	Address common.Address
	Native  bool
}

// DisplayName returns the symbol when known, otherwise the checksummed
// address.
func (r Ref) DisplayName() string {
	if r.Symbol != "" {
		return r.Symbol
	}
	return r.Address.Hex()
}

// Resolver maps token symbols and addresses onto a single chain.
type Resolver struct {
	chainID int64
	known   map[string]registry.KnownToken
}

func NewResolver(chainID int64) *Resolver {
	known := make(map[string]registry.KnownToken)
	for _, t := range registry.KnownTokens(chainID) {
		known[strings.ToUpper(t.Symbol)] = t
	}
	return &Resolver{chainID: chainID, known: known}
}

// Parse resolves a symbol or address string to a Ref. Symbol matching is
// case-insensitive. ETH resolves to the native sentinel address, which is
// never sent on-chain. Strings that are neither a known symbol nor a valid
// hex address are rejected.
func (r *Resolver) Parse(input string) (Ref, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Ref{}, kiterr.New(kiterr.CodeUsage, "token is required")
	}
	upper := strings.ToUpper(trimmed)
	if upper == "ETH" {
		return Ref{Symbol: "ETH", Address: common.HexToAddress(registry.NativeSentinel), Native: true}, nil
	}
	if known, ok := r.known[upper]; ok {
		return Ref{Symbol: upper, Address: common.HexToAddress(known.Address)}, nil
	}
	if common.IsHexAddress(trimmed) {
		return Ref{Address: common.HexToAddress(trimmed)}, nil
	}
	return Ref{}, kiterr.New(kiterr.CodeUsage, fmt.Sprintf("unknown token %q: expected one of the supported symbols or a 0x address", input))
}

// Wrapped returns the wrapped-native token address for the resolver's chain.
func (r *Resolver) Wrapped() (common.Address, error) {
	raw, ok := registry.WrappedNative(r.chainID)
	if !ok {
		return common.Address{}, kiterr.New(kiterr.CodeUnsupported, fmt.Sprintf("no wrapped-native token configured for chain id %d", r.chainID))
	}
	return common.HexToAddress(raw), nil
}

// ForContract returns the address used in contract calls: the wrapped-native
// token for ETH, the resolved address otherwise.
func (r *Resolver) ForContract(ref Ref) (common.Address, error) {
	if ref.Native {
		return r.Wrapped()
	}
	return ref.Address, nil
}
