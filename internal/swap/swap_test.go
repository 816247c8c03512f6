package swap

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/kibankit/kiban-agent-kit/internal/chain"
	"github.com/kibankit/kiban-agent-kit/internal/chaintest"
	"github.com/kibankit/kiban-agent-kit/internal/erc20"
	kiterr "github.com/kibankit/kiban-agent-kit/internal/errors"
	"github.com/kibankit/kiban-agent-kit/internal/registry"
	"github.com/kibankit/kiban-agent-kit/internal/signer"
	"github.com/kibankit/kiban-agent-kit/internal/token"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	wethAddr   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	quoterAddr = common.HexToAddress("0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6")
	routerAddr = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
	walletAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
)

// poolState scripts the backend: per-token decimals and balances, the
// wallet's router allowance, and a fixed quoter output.
type poolState struct {
	decimals  map[common.Address]uint8
	balances  map[common.Address]*big.Int
	allowance *big.Int
	amountOut *big.Int
}

func (p *poolState) handler(t *testing.T) func(msg ethereum.CallMsg) ([]byte, error) {
	t.Helper()
	erc20ABI, err := registry.ParsedERC20ABI()
	if err != nil {
		t.Fatalf("parse erc20 abi: %v", err)
	}
	quoterABI, err := registry.ParsedQuoterABI()
	if err != nil {
		t.Fatalf("parse quoter abi: %v", err)
	}
	return func(msg ethereum.CallMsg) ([]byte, error) {
		if msg.To != nil && *msg.To == quoterAddr {
			return quoterABI.Methods["quoteExactInputSingle"].Outputs.Pack(p.amountOut)
		}
		switch {
		case bytes.HasPrefix(msg.Data, erc20ABI.Methods["decimals"].ID):
			return erc20ABI.Methods["decimals"].Outputs.Pack(p.decimals[*msg.To])
		case bytes.HasPrefix(msg.Data, erc20ABI.Methods["balanceOf"].ID):
			balance := p.balances[*msg.To]
			if balance == nil {
				balance = big.NewInt(0)
			}
			return erc20ABI.Methods["balanceOf"].Outputs.Pack(balance)
		case bytes.HasPrefix(msg.Data, erc20ABI.Methods["allowance"].ID):
			return erc20ABI.Methods["allowance"].Outputs.Pack(p.allowance)
		default:
			t.Fatalf("unexpected call to %s: %x", msg.To, msg.Data)
			return nil, nil
		}
	}
}

func newTestEngine(t *testing.T, backend *chaintest.Backend) *Engine {
	t.Helper()
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testKeyHex})
	if err != nil {
		t.Fatalf("build signer: %v", err)
	}
	client := chain.NewClient(backend, backend.ChainIDValue, s, nil)
	client.SetOptions(chain.Options{PollInterval: 1})
	reader, err := erc20.NewReader(client)
	if err != nil {
		t.Fatalf("build reader: %v", err)
	}
	engine, err := NewEngine(client, token.NewResolver(1), reader, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	return engine
}

func slippage(v float64) *float64 {
	return &v
}

// sentSwapParams unpacks the single router transaction's
// exactInputSingle calldata.
func sentSwapParams(t *testing.T, engine *Engine, backend *chaintest.Backend) routerExactInputSingleParams {
	t.Helper()
	txs := backend.SentTo(routerAddr)
	if len(txs) != 1 {
		t.Fatalf("expected one router tx, got %d", len(txs))
	}
	vals, err := engine.swapABI.Methods["exactInputSingle"].Inputs.Unpack(txs[0].Data()[4:])
	if err != nil {
		t.Fatalf("unpack swap calldata: %v", err)
	}
	return *abi.ConvertType(vals[0], new(routerExactInputSingleParams)).(*routerExactInputSingleParams)
}

func mustParse(t *testing.T, input string) token.Ref {
	t.Helper()
	ref, err := token.NewResolver(1).Parse(input)
	if err != nil {
		t.Fatalf("parse %q: %v", input, err)
	}
	return ref
}

func defaultPool() *poolState {
	return &poolState{
		decimals: map[common.Address]uint8{
			wethAddr: 18,
			usdcAddr: 6,
		},
		balances:  map[common.Address]*big.Int{},
		allowance: big.NewInt(0),
		amountOut: big.NewInt(3_000_000_000), // 3000 USDC
	}
}

func TestApplySlippage(t *testing.T) {
	cases := []struct {
		out      int64
		slippage float64
		want     int64
	}{
		{1_000_000, 0.5, 995_000},
		{1_000_000, 1, 990_000},
		{1_000_000, 0.05, 999_500},
		{10_000, 0.5, 9_950},
	}
	for _, tc := range cases {
		got := applySlippage(big.NewInt(tc.out), tc.slippage)
		if got.Int64() != tc.want {
			t.Fatalf("applySlippage(%d, %v) = %d, want %d", tc.out, tc.slippage, got.Int64(), tc.want)
		}
	}
}

func TestQuoteETHToUSDC(t *testing.T) {
	pool := defaultPool()
	backend := chaintest.New(1)
	backend.CallHandler = pool.handler(t)
	engine := newTestEngine(t, backend)

	quote, err := engine.Quote(context.Background(), Request{
		TokenIn:  mustParse(t, "ETH"),
		TokenOut: mustParse(t, "USDC"),
		Amount:   "1",
	})
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.TokenIn.Address != wethAddr.Hex() {
		t.Fatalf("ETH leg should quote against WETH, got %s", quote.TokenIn.Address)
	}
	if quote.TokenOut.Amount != "3000" {
		t.Fatalf("amount out = %s", quote.TokenOut.Amount)
	}
	if quote.MinimumAmountOut != "2985" {
		t.Fatalf("minimum out = %s, want 0.5%% under quote", quote.MinimumAmountOut)
	}
	if quote.ExecutionPrice != "1 ETH = 3000.000000 USDC" {
		t.Fatalf("execution price = %q", quote.ExecutionPrice)
	}
}

func TestQuoteHonorsCustomSlippage(t *testing.T) {
	pool := defaultPool()
	backend := chaintest.New(1)
	backend.CallHandler = pool.handler(t)
	engine := newTestEngine(t, backend)

	quote, err := engine.Quote(context.Background(), Request{
		TokenIn:         mustParse(t, "ETH"),
		TokenOut:        mustParse(t, "USDC"),
		Amount:          "1",
		SlippagePercent: slippage(1),
	})
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.MinimumAmountOut != "2970" {
		t.Fatalf("minimum out = %s", quote.MinimumAmountOut)
	}
}

func TestQuoteZeroSlippageKeepsFullQuote(t *testing.T) {
	pool := defaultPool()
	backend := chaintest.New(1)
	backend.CallHandler = pool.handler(t)
	engine := newTestEngine(t, backend)

	quote, err := engine.Quote(context.Background(), Request{
		TokenIn:         mustParse(t, "ETH"),
		TokenOut:        mustParse(t, "USDC"),
		Amount:          "1",
		SlippagePercent: slippage(0),
	})
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.MinimumAmountOut != quote.TokenOut.Amount {
		t.Fatalf("zero slippage must demand the full quote: min %s, out %s",
			quote.MinimumAmountOut, quote.TokenOut.Amount)
	}
	if quote.MinimumAmountOut != "3000" {
		t.Fatalf("minimum out = %s", quote.MinimumAmountOut)
	}
}

func TestQuoteRejectsSameToken(t *testing.T) {
	pool := defaultPool()
	backend := chaintest.New(1)
	backend.CallHandler = pool.handler(t)
	engine := newTestEngine(t, backend)

	_, err := engine.Quote(context.Background(), Request{
		TokenIn:  mustParse(t, "ETH"),
		TokenOut: mustParse(t, "WETH"),
		Amount:   "1",
	})
	if err == nil {
		t.Fatal("ETH -> WETH should be rejected after normalization")
	}
	kitErr, ok := kiterr.As(err)
	if !ok || kitErr.Code != kiterr.CodeUsage {
		t.Fatalf("wrong error: %v", err)
	}
}

func TestSwapETHInSkipsApproval(t *testing.T) {
	pool := defaultPool()
	backend := chaintest.New(1)
	backend.CallHandler = pool.handler(t)
	oneETH, _ := new(big.Int).SetString("1000000000000000000", 10)
	backend.Balances[walletAddr] = new(big.Int).Mul(oneETH, big.NewInt(2))
	engine := newTestEngine(t, backend)

	result, err := engine.Swap(context.Background(), Request{
		TokenIn:  mustParse(t, "ETH"),
		TokenOut: mustParse(t, "USDC"),
		Amount:   "1",
	})
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	if len(backend.SentTo(wethAddr)) != 0 {
		t.Fatal("ETH input must not trigger an approval")
	}
	routerTxs := backend.SentTo(routerAddr)
	if len(routerTxs) != 1 {
		t.Fatalf("expected one router tx, got %d", len(routerTxs))
	}
	if routerTxs[0].Value().Cmp(oneETH) != 0 {
		t.Fatalf("ETH input should ride as tx value, got %s", routerTxs[0].Value())
	}
	if result.ExpectedAmountOut != "3000" {
		t.Fatalf("expected out = %s", result.ExpectedAmountOut)
	}
}

func TestSwapWithSufficientAllowanceSkipsApproval(t *testing.T) {
	pool := defaultPool()
	pool.decimals[usdcAddr] = 6
	pool.balances[usdcAddr] = big.NewInt(5_000_000_000)
	pool.allowance = big.NewInt(5_000_000_000)
	pool.amountOut = big.NewInt(1_500_000_000_000_000_000) // 1.5 WETH
	backend := chaintest.New(1)
	backend.CallHandler = pool.handler(t)
	engine := newTestEngine(t, backend)

	_, err := engine.Swap(context.Background(), Request{
		TokenIn:  mustParse(t, "USDC"),
		TokenOut: mustParse(t, "WETH"),
		Amount:   "3000",
	})
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	if len(backend.SentTo(usdcAddr)) != 0 {
		t.Fatal("sufficient allowance must not trigger an approval")
	}
	routerTxs := backend.SentTo(routerAddr)
	if len(routerTxs) != 1 || routerTxs[0].Value().Sign() != 0 {
		t.Fatalf("unexpected router txs: %d", len(routerTxs))
	}
}

func TestSwapApprovesWhenAllowanceShort(t *testing.T) {
	pool := defaultPool()
	pool.balances[usdcAddr] = big.NewInt(5_000_000_000)
	pool.allowance = big.NewInt(100)
	pool.amountOut = big.NewInt(1_500_000_000_000_000_000)
	backend := chaintest.New(1)
	backend.CallHandler = pool.handler(t)
	engine := newTestEngine(t, backend)

	_, err := engine.Swap(context.Background(), Request{
		TokenIn:  mustParse(t, "USDC"),
		TokenOut: mustParse(t, "WETH"),
		Amount:   "3000",
	})
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	if len(backend.SentTo(usdcAddr)) != 1 {
		t.Fatal("short allowance must trigger exactly one approval")
	}
	if len(backend.SentTo(routerAddr)) != 1 {
		t.Fatal("expected the swap tx after the approval")
	}
}

func TestSwapDefaultRecipientIsWallet(t *testing.T) {
	pool := defaultPool()
	pool.balances[usdcAddr] = big.NewInt(5_000_000_000)
	pool.allowance = big.NewInt(5_000_000_000)
	pool.amountOut = big.NewInt(1_500_000_000_000_000_000)
	backend := chaintest.New(1)
	backend.CallHandler = pool.handler(t)
	engine := newTestEngine(t, backend)

	_, err := engine.Swap(context.Background(), Request{
		TokenIn:  mustParse(t, "USDC"),
		TokenOut: mustParse(t, "WETH"),
		Amount:   "3000",
	})
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	params := sentSwapParams(t, engine, backend)
	if params.Recipient != walletAddr {
		t.Fatalf("recipient = %s, want the wallet", params.Recipient)
	}
}

func TestSwapDeliversToCustomRecipient(t *testing.T) {
	pool := defaultPool()
	pool.balances[usdcAddr] = big.NewInt(5_000_000_000)
	pool.allowance = big.NewInt(5_000_000_000)
	pool.amountOut = big.NewInt(1_500_000_000_000_000_000)
	backend := chaintest.New(1)
	backend.CallHandler = pool.handler(t)
	engine := newTestEngine(t, backend)

	other := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	_, err := engine.Swap(context.Background(), Request{
		TokenIn:   mustParse(t, "USDC"),
		TokenOut:  mustParse(t, "WETH"),
		Amount:    "3000",
		Recipient: other,
	})
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	params := sentSwapParams(t, engine, backend)
	if params.Recipient != other {
		t.Fatalf("recipient = %s, want %s", params.Recipient, other)
	}
}

func TestSwapETHOutIgnoresCustomRecipient(t *testing.T) {
	pool := defaultPool()
	pool.balances[usdcAddr] = big.NewInt(5_000_000_000)
	pool.allowance = big.NewInt(5_000_000_000)
	pool.amountOut = big.NewInt(1_500_000_000_000_000_000)
	backend := chaintest.New(1)
	backend.CallHandler = pool.handler(t)
	engine := newTestEngine(t, backend)

	_, err := engine.Swap(context.Background(), Request{
		TokenIn:   mustParse(t, "USDC"),
		TokenOut:  mustParse(t, "ETH"),
		Amount:    "3000",
		Recipient: common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
	})
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	params := sentSwapParams(t, engine, backend)
	if params.Recipient != walletAddr {
		t.Fatalf("ETH output must go to the wallet, got %s", params.Recipient)
	}
}

func TestSwapInsufficientBalance(t *testing.T) {
	pool := defaultPool()
	pool.balances[usdcAddr] = big.NewInt(1_000_000) // 1 USDC
	backend := chaintest.New(1)
	backend.CallHandler = pool.handler(t)
	engine := newTestEngine(t, backend)

	_, err := engine.Swap(context.Background(), Request{
		TokenIn:  mustParse(t, "USDC"),
		TokenOut: mustParse(t, "WETH"),
		Amount:   "3000",
	})
	if err == nil {
		t.Fatal("expected insufficient balance error")
	}
	kitErr, ok := kiterr.As(err)
	if !ok || kitErr.Code != kiterr.CodeInsufficientFunds {
		t.Fatalf("wrong error code: %v", err)
	}
	if !strings.Contains(err.Error(), "have 1") || !strings.Contains(err.Error(), "need 3000") {
		t.Fatalf("error should quote balance and amount: %v", err)
	}
	if len(backend.Sent) != 0 {
		t.Fatal("no transaction should be sent")
	}
}
