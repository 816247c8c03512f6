package registry

import "testing"

func TestUniswapV3ContractsMainnet(t *testing.T) {
	quoter, router, ok := UniswapV3Contracts(1)
	if !ok {
		t.Fatal("mainnet contracts missing")
	}
	if quoter != "0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6" {
		t.Fatalf("quoter = %s", quoter)
	}
	if router != "0xE592427A0AEce92De3Edee1F18E0157C05861564" {
		t.Fatalf("router = %s", router)
	}
	if _, _, ok := UniswapV3Contracts(999); ok {
		t.Fatal("unknown chain should have no contracts")
	}
}

func TestWrappedNativePerChain(t *testing.T) {
	cases := map[int64]string{
		1:     "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		10:    "0x4200000000000000000000000000000000000006",
		8453:  "0x4200000000000000000000000000000000000006",
		42161: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
	}
	for chainID, want := range cases {
		got, ok := WrappedNative(chainID)
		if !ok || got != want {
			t.Fatalf("WrappedNative(%d) = %s, %v", chainID, got, ok)
		}
	}
	if _, ok := WrappedNative(999); ok {
		t.Fatal("unknown chain should have no wrapped native")
	}
}

func TestKnownTokensMainnet(t *testing.T) {
	tokens := KnownTokens(1)
	bySymbol := map[string]KnownToken{}
	for _, tok := range tokens {
		bySymbol[tok.Symbol] = tok
	}
	usdc, ok := bySymbol["USDC"]
	if !ok || usdc.Decimals != 6 {
		t.Fatalf("USDC entry wrong: %+v", usdc)
	}
	weth, ok := bySymbol["WETH"]
	if !ok || weth.Decimals != 18 {
		t.Fatalf("WETH entry wrong: %+v", weth)
	}
	if len(KnownTokens(999)) != 0 {
		t.Fatal("unknown chain should have no known tokens")
	}
}

func TestParsedABIs(t *testing.T) {
	erc20, err := ParsedERC20ABI()
	if err != nil {
		t.Fatalf("erc20 abi: %v", err)
	}
	for _, method := range []string{"name", "symbol", "decimals", "balanceOf", "allowance", "approve", "transfer"} {
		if _, ok := erc20.Methods[method]; !ok {
			t.Fatalf("erc20 abi missing %s", method)
		}
	}
	quoter, err := ParsedQuoterABI()
	if err != nil {
		t.Fatalf("quoter abi: %v", err)
	}
	if _, ok := quoter.Methods["quoteExactInputSingle"]; !ok {
		t.Fatal("quoter abi missing quoteExactInputSingle")
	}
	router, err := ParsedRouterABI()
	if err != nil {
		t.Fatalf("router abi: %v", err)
	}
	if _, ok := router.Methods["exactInputSingle"]; !ok {
		t.Fatal("router abi missing exactInputSingle")
	}
}

func TestResolveRPCURL(t *testing.T) {
	url, err := ResolveRPCURL("https://custom.example", 1)
	if err != nil || url != "https://custom.example" {
		t.Fatalf("override not honored: %s, %v", url, err)
	}
	url, err = ResolveRPCURL("", 1)
	if err != nil || url == "" {
		t.Fatalf("default mainnet url missing: %v", err)
	}
	if _, err := ResolveRPCURL("", 999); err == nil {
		t.Fatal("unknown chain without override should fail")
	}
}
