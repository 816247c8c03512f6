// Package kit is the public surface of the kiban agent kit: a wallet
// bound to one EVM chain with token, swap and market data operations.
// Every method is safe for concurrent use and returns typed errors that
// carry a stable code.
package kit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/kibankit/kiban-agent-kit/internal/cache"
	"github.com/kibankit/kiban-agent-kit/internal/chain"
	"github.com/kibankit/kiban-agent-kit/internal/erc20"
	kiterr "github.com/kibankit/kiban-agent-kit/internal/errors"
	"github.com/kibankit/kiban-agent-kit/internal/httpx"
	"github.com/kibankit/kiban-agent-kit/internal/market"
	"github.com/kibankit/kiban-agent-kit/internal/model"
	"github.com/kibankit/kiban-agent-kit/internal/registry"
	"github.com/kibankit/kiban-agent-kit/internal/signer"
	"github.com/kibankit/kiban-agent-kit/internal/swap"
	"github.com/kibankit/kiban-agent-kit/internal/token"
)

const nativeDecimals = 18

// Config binds a kit instance to one chain and one wallet.
type Config struct {
	ChainID       int64
	RPCURL        string
	PrivateKey    string
	MarketAPIBase string
	HTTPTimeout   time.Duration
	HTTPRetries   int
	CacheStore    *cache.Store
	Logger        *zap.Logger
}

type Kit struct {
	client   *chain.Client
	resolver *token.Resolver
	tokens   *erc20.Reader
	swaps    *swap.Engine
	market   *market.Client
	chainID  int64
	log      *zap.Logger
	now      func() time.Time
}

// New dials the configured RPC endpoint and wires the full kit. The
// private key may come from Config.PrivateKey or the KIBAN_* key
// discovery chain; a kit without a key still serves reads and quotes.
func New(ctx context.Context, cfg Config) (*Kit, error) {
	if cfg.ChainID == 0 {
		cfg.ChainID = 1
	}
	rpcURL, err := registry.ResolveRPCURL(cfg.RPCURL, cfg.ChainID)
	if err != nil {
		return nil, err
	}

	var txSigner signer.Signer
	local, err := signer.NewLocalSignerFromEnv(cfg.PrivateKey)
	switch {
	case err == nil:
		txSigner = local
	case errors.Is(err, signer.ErrNoKey):
		// Read-only kit; transfers, approvals and swaps fail at call
		// time instead of blocking balance and quote reads.
	default:
		return nil, kiterr.Wrap(kiterr.CodeAuth, "load signing key", err)
	}

	client, err := chain.Dial(ctx, rpcURL, cfg.ChainID, txSigner, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, cfg)
}

// NewWithClient wires a kit around an existing chain client. Used by New
// and by tests that substitute an in-memory backend.
func NewWithClient(client *chain.Client, cfg Config) (*Kit, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	chainID := client.ChainID().Int64()
	resolver := token.NewResolver(chainID)
	tokens, err := erc20.NewReader(client)
	if err != nil {
		client.Close()
		return nil, err
	}
	swaps, err := swap.NewEngine(client, resolver, tokens, log)
	if err != nil {
		// Chains without configured swap contracts still serve
		// balances, transfers and market data.
		if kitErr, ok := kiterr.As(err); !ok || kitErr.Code != kiterr.CodeUnsupported {
			client.Close()
			return nil, err
		}
		swaps = nil
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.HTTPRetries
	if retries < 0 {
		retries = 0
	}
	marketClient := market.New(httpx.New(timeout, retries), cfg.MarketAPIBase, cfg.CacheStore, log)

	return &Kit{
		client:   client,
		resolver: resolver,
		tokens:   tokens,
		swaps:    swaps,
		market:   marketClient,
		chainID:  chainID,
		log:      log,
		now:      time.Now,
	}, nil
}

func (k *Kit) Close() {
	k.client.Close()
}

// Address returns the wallet address, or the empty string for a
// read-only kit.
func (k *Kit) Address() string {
	account := k.client.Account()
	if account == (common.Address{}) {
		return ""
	}
	return account.Hex()
}

func (k *Kit) ChainID() int64 {
	return k.chainID
}

// GetNativeBalance reads the native asset balance of an address. An
// empty address means the kit's own wallet.
func (k *Kit) GetNativeBalance(ctx context.Context, address string) (model.NativeBalance, error) {
	account, err := k.resolveAccount(address)
	if err != nil {
		return model.NativeBalance{}, err
	}
	balance, err := k.client.NativeBalance(ctx, account)
	if err != nil {
		return model.NativeBalance{}, err
	}
	return model.NativeBalance{
		Address: account.Hex(),
		Balance: model.AmountInfo{
			AmountBaseUnits: balance.String(),
			AmountDecimal:   token.ToHumanUnits(balance, nativeDecimals),
			Decimals:        nativeDecimals,
		},
		FetchedAt: k.now().UTC().Format(time.RFC3339),
	}, nil
}

// GetTokenInfo reads metadata and the wallet's balance for a token given
// by symbol or address. ETH reports the native balance with fixed
// metadata since it has no contract.
func (k *Kit) GetTokenInfo(ctx context.Context, tokenRef string) (model.TokenInfo, error) {
	ref, err := k.resolver.Parse(tokenRef)
	if err != nil {
		return model.TokenInfo{}, err
	}
	if ref.Native {
		balance, err := k.client.NativeBalance(ctx, k.client.Account())
		if err != nil {
			return model.TokenInfo{}, err
		}
		return model.TokenInfo{
			Address:    ref.Address.Hex(),
			Name:       "Ether",
			Symbol:     "ETH",
			Decimals:   nativeDecimals,
			Balance:    token.ToHumanUnits(balance, nativeDecimals),
			BalanceRaw: balance.String(),
		}, nil
	}
	info, err := k.tokens.Info(ctx, ref.Address, k.client.Account())
	if err != nil {
		return model.TokenInfo{}, err
	}
	return model.TokenInfo{
		Address:    info.Address.Hex(),
		Name:       info.Name,
		Symbol:     info.Symbol,
		Decimals:   info.Decimals,
		Balance:    token.ToHumanUnits(info.Balance, info.Decimals),
		BalanceRaw: info.Balance.String(),
	}, nil
}

// GetAllowance reads how much of a token a spender may move from the
// kit's wallet.
func (k *Kit) GetAllowance(ctx context.Context, tokenRef, spender string) (model.Allowance, error) {
	ref, err := k.resolver.Parse(tokenRef)
	if err != nil {
		return model.Allowance{}, err
	}
	if ref.Native {
		return model.Allowance{}, kiterr.New(kiterr.CodeUsage, "ETH has no allowance; approvals apply to ERC20 tokens only")
	}
	spenderAddr, err := parseAddress(spender, "spender")
	if err != nil {
		return model.Allowance{}, err
	}
	owner := k.client.Account()
	amount, err := k.tokens.Allowance(ctx, ref.Address, owner, spenderAddr)
	if err != nil {
		return model.Allowance{}, err
	}
	decimals, err := k.tokens.Decimals(ctx, ref.Address)
	if err != nil {
		return model.Allowance{}, err
	}
	return model.Allowance{
		Token:   ref.Address.Hex(),
		Owner:   owner.Hex(),
		Spender: spenderAddr.Hex(),
		Amount: model.AmountInfo{
			AmountBaseUnits: amount.String(),
			AmountDecimal:   token.ToHumanUnits(amount, decimals),
			Decimals:        decimals,
		},
	}, nil
}

// TransferNative sends ETH to a recipient. The amount is in human units.
func (k *Kit) TransferNative(ctx context.Context, to, amount string) (model.TransferResult, error) {
	recipient, err := parseAddress(to, "recipient")
	if err != nil {
		return model.TransferResult{}, err
	}
	value, err := token.ToBaseUnits(amount, nativeDecimals)
	if err != nil {
		return model.TransferResult{}, err
	}
	if value.Sign() <= 0 {
		return model.TransferResult{}, kiterr.New(kiterr.CodeUsage, "transfer amount must be greater than zero")
	}
	account := k.client.Account()
	balance, err := k.client.NativeBalance(ctx, account)
	if err != nil {
		return model.TransferResult{}, err
	}
	if balance.Cmp(value) < 0 {
		return model.TransferResult{}, kiterr.New(kiterr.CodeInsufficientFunds, fmt.Sprintf(
			"insufficient ETH balance: have %s, need %s",
			token.ToHumanUnits(balance, nativeDecimals),
			token.ToHumanUnits(value, nativeDecimals),
		))
	}
	hash, _, err := k.client.SubmitAndWait(ctx, recipient, nil, value)
	if err != nil {
		return model.TransferResult{}, err
	}
	return model.TransferResult{
		Hash:   hash.Hex(),
		From:   account.Hex(),
		To:     recipient.Hex(),
		Token:  "ETH",
		Amount: token.ToHumanUnits(value, nativeDecimals),
	}, nil
}

// TransferToken sends an ERC20 token to a recipient. ETH routes through
// TransferNative.
func (k *Kit) TransferToken(ctx context.Context, tokenRef, to, amount string) (model.TransferResult, error) {
	ref, err := k.resolver.Parse(tokenRef)
	if err != nil {
		return model.TransferResult{}, err
	}
	if ref.Native {
		return k.TransferNative(ctx, to, amount)
	}
	recipient, err := parseAddress(to, "recipient")
	if err != nil {
		return model.TransferResult{}, err
	}
	decimals, err := k.tokens.Decimals(ctx, ref.Address)
	if err != nil {
		return model.TransferResult{}, err
	}
	value, err := token.ToBaseUnits(amount, decimals)
	if err != nil {
		return model.TransferResult{}, err
	}
	if value.Sign() <= 0 {
		return model.TransferResult{}, kiterr.New(kiterr.CodeUsage, "transfer amount must be greater than zero")
	}
	account := k.client.Account()
	balance, err := k.tokens.BalanceOf(ctx, ref.Address, account)
	if err != nil {
		return model.TransferResult{}, err
	}
	if balance.Cmp(value) < 0 {
		return model.TransferResult{}, kiterr.New(kiterr.CodeInsufficientFunds, fmt.Sprintf(
			"insufficient %s balance: have %s, need %s",
			ref.DisplayName(),
			token.ToHumanUnits(balance, decimals),
			token.ToHumanUnits(value, decimals),
		))
	}
	hash, err := k.tokens.Transfer(ctx, ref.Address, recipient, value)
	if err != nil {
		return model.TransferResult{}, err
	}
	return model.TransferResult{
		Hash:   hash.Hex(),
		From:   account.Hex(),
		To:     recipient.Hex(),
		Token:  ref.DisplayName(),
		Amount: token.ToHumanUnits(value, decimals),
	}, nil
}

// ApproveToken grants a spender an exact allowance over one of the
// wallet's tokens.
func (k *Kit) ApproveToken(ctx context.Context, tokenRef, spender, amount string) (model.ApprovalResult, error) {
	ref, err := k.resolver.Parse(tokenRef)
	if err != nil {
		return model.ApprovalResult{}, err
	}
	if ref.Native {
		return model.ApprovalResult{}, kiterr.New(kiterr.CodeUsage, "ETH cannot be approved; approvals apply to ERC20 tokens only")
	}
	spenderAddr, err := parseAddress(spender, "spender")
	if err != nil {
		return model.ApprovalResult{}, err
	}
	decimals, err := k.tokens.Decimals(ctx, ref.Address)
	if err != nil {
		return model.ApprovalResult{}, err
	}
	value, err := token.ToBaseUnits(amount, decimals)
	if err != nil {
		return model.ApprovalResult{}, err
	}
	hash, err := k.tokens.Approve(ctx, ref.Address, spenderAddr, value)
	if err != nil {
		return model.ApprovalResult{}, err
	}
	return model.ApprovalResult{
		Hash:    hash.Hex(),
		Token:   ref.Address.Hex(),
		Spender: spenderAddr.Hex(),
		Amount:  token.ToHumanUnits(value, decimals),
	}, nil
}

// SwapParams describes an exact-input swap between two tokens. Tokens
// are given as symbols or 0x addresses and the amount in human units.
type SwapParams struct {
	TokenIn  string
	TokenOut string
	Amount   string

	// SlippagePercent bounds the accepted output. Nil applies the 0.5%
	// default; an explicit zero demands the quoted amount in full.
	SlippagePercent *float64

	// Recipient receives the output token. Empty defaults to the
	// wallet; ETH output is always delivered to the wallet.
	Recipient string
}

// GetSwapQuote prices an exact-input swap between two tokens without
// touching wallet state.
func (k *Kit) GetSwapQuote(ctx context.Context, params SwapParams) (model.SwapQuote, error) {
	req, err := k.swapRequest(params)
	if err != nil {
		return model.SwapQuote{}, err
	}
	return k.swaps.Quote(ctx, req)
}

// SwapTokens executes an exact-input swap with a fresh quote and a
// slippage-bounded minimum output.
func (k *Kit) SwapTokens(ctx context.Context, params SwapParams) (model.SwapResult, error) {
	req, err := k.swapRequest(params)
	if err != nil {
		return model.SwapResult{}, err
	}
	return k.swaps.Swap(ctx, req)
}

func (k *Kit) swapRequest(params SwapParams) (swap.Request, error) {
	if k.swaps == nil {
		return swap.Request{}, kiterr.New(kiterr.CodeUnsupported, fmt.Sprintf("swaps are not supported on chain id %d", k.chainID))
	}
	in, err := k.resolver.Parse(params.TokenIn)
	if err != nil {
		return swap.Request{}, err
	}
	out, err := k.resolver.Parse(params.TokenOut)
	if err != nil {
		return swap.Request{}, err
	}
	req := swap.Request{
		TokenIn:         in,
		TokenOut:        out,
		Amount:          params.Amount,
		SlippagePercent: params.SlippagePercent,
	}
	if strings.TrimSpace(params.Recipient) != "" {
		recipient, err := parseAddress(params.Recipient, "recipient")
		if err != nil {
			return swap.Request{}, err
		}
		req.Recipient = recipient
	}
	return req, nil
}

// GetTokenByAddress lists trading pairs for a token contract address,
// best volume first. The cache status reports whether the market
// response was served fresh, cached or stale.
func (k *Kit) GetTokenByAddress(ctx context.Context, address string) ([]model.TokenPair, model.CacheStatus, error) {
	addr, err := parseAddress(address, "token")
	if err != nil {
		return nil, model.CacheStatus{Status: "bypass"}, err
	}
	return k.market.TokenPairs(ctx, addr.Hex())
}

// SearchTokenByTicker finds the top listed tokens matching a ticker
// symbol.
func (k *Kit) SearchTokenByTicker(ctx context.Context, ticker string) ([]model.TokenPair, model.CacheStatus, error) {
	return k.market.SearchByTicker(ctx, ticker)
}

func (k *Kit) resolveAccount(address string) (common.Address, error) {
	if address == "" {
		account := k.client.Account()
		if account == (common.Address{}) {
			return common.Address{}, kiterr.New(kiterr.CodeConfig, "no wallet configured and no address given")
		}
		return account, nil
	}
	return parseAddress(address, "address")
}

func parseAddress(input, what string) (common.Address, error) {
	if input == "" {
		return common.Address{}, kiterr.New(kiterr.CodeUsage, what+" is required")
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, kiterr.New(kiterr.CodeInvalidAddress, fmt.Sprintf("invalid %s address %q", what, input))
	}
	return common.HexToAddress(input), nil
}
