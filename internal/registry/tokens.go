package registry

// KnownToken is a symbol the kit resolves without an on-chain lookup.
type KnownToken struct {
	Symbol   string
	Address  string
	Decimals int
}

// Bootstrap token table per chain. Symbols outside this table must be
// passed as literal contract addresses.
var knownTokensByChainID = map[int64][]KnownToken{
	1: {
		{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
		{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		{Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
		{Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
	},
}

func KnownTokens(chainID int64) []KnownToken {
	return knownTokensByChainID[chainID]
}
