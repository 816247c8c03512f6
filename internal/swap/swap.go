// Package swap quotes and executes single-hop Uniswap V3 swaps with a
// slippage-bounded minimum output. ETH legs are normalized to the
// wrapped-native token for every contract interaction.
package swap

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kibankit/kiban-agent-kit/internal/chain"
	"github.com/kibankit/kiban-agent-kit/internal/erc20"
	kiterr "github.com/kibankit/kiban-agent-kit/internal/errors"
	"github.com/kibankit/kiban-agent-kit/internal/model"
	"github.com/kibankit/kiban-agent-kit/internal/registry"
	"github.com/kibankit/kiban-agent-kit/internal/token"
)

const (
	// feeTier is the pool fee used for all quotes and swaps, in
	// hundredths of a bip. 3000 is the 0.30% tier that carries the bulk
	// of mainnet liquidity for the supported pairs.
	feeTier = 3000

	// DefaultSlippagePercent bounds how much worse than the quote the
	// executed output may be.
	DefaultSlippagePercent = 0.5

	// swapDeadline is how long a submitted swap stays valid on-chain.
	swapDeadline = 20 * time.Minute
)

// Request describes one exact-input swap leg pair.
type Request struct {
	TokenIn  token.Ref
	TokenOut token.Ref
	Amount   string

	// SlippagePercent bounds how far below the quote the executed
	// output may land. Nil applies DefaultSlippagePercent; an explicit
	// zero demands the quoted amount in full.
	SlippagePercent *float64

	// Recipient receives the output token. The zero address means the
	// signing wallet. ETH output is always delivered to the wallet.
	Recipient common.Address
}

type Engine struct {
	client   *chain.Client
	resolver *token.Resolver
	tokens   *erc20.Reader
	quoter   common.Address
	router   common.Address
	quoteABI abi.ABI
	swapABI  abi.ABI
	log      *zap.Logger
	now      func() time.Time
}

func NewEngine(client *chain.Client, resolver *token.Resolver, tokens *erc20.Reader, log *zap.Logger) (*Engine, error) {
	chainID := client.ChainID().Int64()
	quoter, router, ok := registry.UniswapV3Contracts(chainID)
	if !ok {
		return nil, kiterr.New(kiterr.CodeUnsupported, fmt.Sprintf("no swap contracts configured for chain id %d", chainID))
	}
	quoteABI, err := registry.ParsedQuoterABI()
	if err != nil {
		return nil, err
	}
	swapABI, err := registry.ParsedRouterABI()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		client:   client,
		resolver: resolver,
		tokens:   tokens,
		quoter:   common.HexToAddress(quoter),
		router:   common.HexToAddress(router),
		quoteABI: quoteABI,
		swapABI:  swapABI,
		log:      log,
		now:      time.Now,
	}, nil
}

// quotePlan is a quote plus the raw values execution needs.
type quotePlan struct {
	quote       model.SwapQuote
	tokenIn     common.Address
	tokenOut    common.Address
	amountIn    *big.Int
	amountOut   *big.Int
	minOut      *big.Int
	decimalsOut int
}

// Quote prices an exact-input swap without touching wallet state. The
// quoted output and the derived minimum are both returned in human
// units.
func (e *Engine) Quote(ctx context.Context, req Request) (model.SwapQuote, error) {
	plan, err := e.plan(ctx, req)
	if err != nil {
		return model.SwapQuote{}, err
	}
	return plan.quote, nil
}

func (e *Engine) plan(ctx context.Context, req Request) (quotePlan, error) {
	slippage := DefaultSlippagePercent
	if req.SlippagePercent != nil {
		slippage = *req.SlippagePercent
	}
	if slippage < 0 || slippage >= 100 {
		return quotePlan{}, kiterr.New(kiterr.CodeUsage, "slippage must be between 0 and 100 percent")
	}

	tokenIn, err := e.resolver.ForContract(req.TokenIn)
	if err != nil {
		return quotePlan{}, err
	}
	tokenOut, err := e.resolver.ForContract(req.TokenOut)
	if err != nil {
		return quotePlan{}, err
	}
	if tokenIn == tokenOut {
		return quotePlan{}, kiterr.New(kiterr.CodeUsage, fmt.Sprintf("cannot swap %s for itself", req.TokenIn.DisplayName()))
	}

	decimalsIn, err := e.tokens.Decimals(ctx, tokenIn)
	if err != nil {
		return quotePlan{}, err
	}
	decimalsOut, err := e.tokens.Decimals(ctx, tokenOut)
	if err != nil {
		return quotePlan{}, err
	}

	amountIn, err := token.ToBaseUnits(req.Amount, decimalsIn)
	if err != nil {
		return quotePlan{}, err
	}
	if amountIn.Sign() <= 0 {
		return quotePlan{}, kiterr.New(kiterr.CodeUsage, "swap amount must be greater than zero")
	}

	out, err := e.client.Read(ctx, e.quoter, e.quoteABI, "quoteExactInputSingle",
		tokenIn, tokenOut, big.NewInt(feeTier), amountIn, big.NewInt(0))
	if err != nil {
		return quotePlan{}, err
	}
	if len(out) != 1 {
		return quotePlan{}, kiterr.New(kiterr.CodeContractRead, "quoter returned unexpected output")
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return quotePlan{}, kiterr.New(kiterr.CodeContractRead, "quoter returned unexpected type")
	}
	if amountOut.Sign() <= 0 {
		return quotePlan{}, kiterr.New(kiterr.CodeContractRead, fmt.Sprintf("no liquidity for %s -> %s at the %d fee tier",
			req.TokenIn.DisplayName(), req.TokenOut.DisplayName(), feeTier))
	}

	minOut := applySlippage(amountOut, slippage)

	quote := model.SwapQuote{
		TokenIn: model.QuoteSide{
			Address:  tokenIn.Hex(),
			Symbol:   req.TokenIn.DisplayName(),
			Decimals: decimalsIn,
			Amount:   token.ToHumanUnits(amountIn, decimalsIn),
		},
		TokenOut: model.QuoteSide{
			Address:  tokenOut.Hex(),
			Symbol:   req.TokenOut.DisplayName(),
			Decimals: decimalsOut,
			Amount:   token.ToHumanUnits(amountOut, decimalsOut),
		},
		ExecutionPrice:   executionPrice(req.TokenIn.DisplayName(), req.TokenOut.DisplayName(), amountIn, decimalsIn, amountOut, decimalsOut),
		MinimumAmountOut: token.ToHumanUnits(minOut, decimalsOut),
		PriceImpact:      "< 1%",
		FetchedAt:        e.now().UTC().Format(time.RFC3339),
	}
	return quotePlan{
		quote:       quote,
		tokenIn:     tokenIn,
		tokenOut:    tokenOut,
		amountIn:    amountIn,
		amountOut:   amountOut,
		minOut:      minOut,
		decimalsOut: decimalsOut,
	}, nil
}

// Swap fetches a fresh quote and executes it: approve the router for
// exactly the input amount when the current allowance falls short, then
// submit exactInputSingle and wait for the receipt. ETH input rides as
// transaction value instead of an approval.
func (e *Engine) Swap(ctx context.Context, req Request) (model.SwapResult, error) {
	plan, err := e.plan(ctx, req)
	if err != nil {
		return model.SwapResult{}, err
	}
	account := e.client.Account()

	value := big.NewInt(0)
	if req.TokenIn.Native {
		value = plan.amountIn
		balance, err := e.client.NativeBalance(ctx, account)
		if err != nil {
			return model.SwapResult{}, err
		}
		if balance.Cmp(plan.amountIn) < 0 {
			return model.SwapResult{}, insufficientInput(req.TokenIn.DisplayName(), plan.amountIn, balance, plan.quote.TokenIn.Decimals)
		}
	} else {
		balance, err := e.tokens.BalanceOf(ctx, plan.tokenIn, account)
		if err != nil {
			return model.SwapResult{}, err
		}
		if balance.Cmp(plan.amountIn) < 0 {
			return model.SwapResult{}, insufficientInput(req.TokenIn.DisplayName(), plan.amountIn, balance, plan.quote.TokenIn.Decimals)
		}
		if err := e.ensureAllowance(ctx, plan.tokenIn, account, plan.amountIn); err != nil {
			return model.SwapResult{}, err
		}
	}

	recipient := account
	if req.Recipient != (common.Address{}) && !req.TokenOut.Native {
		recipient = req.Recipient
	}

	deadline := big.NewInt(e.now().Add(swapDeadline).Unix())
	params := routerExactInputSingleParams{
		TokenIn:           plan.tokenIn,
		TokenOut:          plan.tokenOut,
		Fee:               big.NewInt(feeTier),
		Recipient:         recipient,
		Deadline:          deadline,
		AmountIn:          plan.amountIn,
		AmountOutMinimum:  plan.minOut,
		SqrtPriceLimitX96: big.NewInt(0),
	}
	data, err := e.swapABI.Pack("exactInputSingle", params)
	if err != nil {
		return model.SwapResult{}, kiterr.Wrap(kiterr.CodeInternal, "pack swap calldata", err)
	}

	e.log.Info("executing swap",
		zap.String("token_in", plan.tokenIn.Hex()),
		zap.String("token_out", plan.tokenOut.Hex()),
		zap.String("amount_in", plan.amountIn.String()),
		zap.String("minimum_out", plan.minOut.String()),
		zap.String("recipient", recipient.Hex()),
	)
	hash, _, err := e.client.SubmitAndWait(ctx, e.router, data, value)
	if err != nil {
		return model.SwapResult{}, err
	}

	return model.SwapResult{
		Hash:              hash.Hex(),
		TokenIn:           req.TokenIn.DisplayName(),
		TokenOut:          req.TokenOut.DisplayName(),
		AmountIn:          plan.quote.TokenIn.Amount,
		ExpectedAmountOut: plan.quote.TokenOut.Amount,
	}, nil
}

// ensureAllowance tops the router allowance up to exactly amount when the
// current allowance is short. The approval is confirmed before returning.
func (e *Engine) ensureAllowance(ctx context.Context, tokenAddr, owner common.Address, amount *big.Int) error {
	current, err := e.tokens.Allowance(ctx, tokenAddr, owner, e.router)
	if err != nil {
		return err
	}
	if current.Cmp(amount) >= 0 {
		return nil
	}
	e.log.Info("approving swap router",
		zap.String("token", tokenAddr.Hex()),
		zap.String("amount", amount.String()),
	)
	if _, err := e.tokens.Approve(ctx, tokenAddr, e.router, amount); err != nil {
		return err
	}
	return nil
}

// routerExactInputSingleParams mirrors the router's ExactInputSingleParams
// tuple. Field order must match the ABI component order.
type routerExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// applySlippage computes the worst acceptable output in integer basis
// points so the bound is exact at any amount scale.
func applySlippage(amountOut *big.Int, slippagePercent float64) *big.Int {
	bps := int64(math.Round(slippagePercent * 100))
	minOut := new(big.Int).Mul(amountOut, big.NewInt(10_000-bps))
	return minOut.Div(minOut, big.NewInt(10_000))
}

// executionPrice renders the all-in rate as "1 IN = <rate> OUT".
func executionPrice(symbolIn, symbolOut string, amountIn *big.Int, decimalsIn int, amountOut *big.Int, decimalsOut int) string {
	in := decimal.NewFromBigInt(amountIn, -int32(decimalsIn))
	out := decimal.NewFromBigInt(amountOut, -int32(decimalsOut))
	if in.IsZero() {
		return ""
	}
	rate := out.DivRound(in, 18)
	return fmt.Sprintf("1 %s = %s %s", symbolIn, rate.StringFixed(6), symbolOut)
}

func insufficientInput(symbol string, required, balance *big.Int, decimals int) error {
	return kiterr.New(kiterr.CodeInsufficientFunds, fmt.Sprintf(
		"insufficient %s balance: have %s, need %s",
		symbol,
		token.ToHumanUnits(balance, decimals),
		token.ToHumanUnits(required, decimals),
	))
}
