package registry

// NativeSentinel is the conventional placeholder address for the chain's
// native asset. It is never sent on-chain; swap and quote paths substitute
// the wrapped-native token before any contract interaction.
const NativeSentinel = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// Canonical Uniswap V3 contracts used by swap quoting/execution.
var uniswapV3ContractsByChainID = map[int64]struct {
	Quoter string
	Router string
}{
	1: {
		Quoter: "0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6",
		Router: "0xE592427A0AEce92De3Edee1F18E0157C05861564",
	},
}

func UniswapV3Contracts(chainID int64) (quoter string, router string, ok bool) {
	contracts, ok := uniswapV3ContractsByChainID[chainID]
	if !ok {
		return "", "", false
	}
	return contracts.Quoter, contracts.Router, true
}

// Wrapped-native token per chain, used whenever ETH appears on a swap leg.
var wrappedNativeByChainID = map[int64]string{
	1:     "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
	10:    "0x4200000000000000000000000000000000000006",
	8453:  "0x4200000000000000000000000000000000000006",
	42161: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
}

func WrappedNative(chainID int64) (string, bool) {
	value, ok := wrappedNativeByChainID[chainID]
	return value, ok
}
