package agent

import (
	"context"

	"github.com/kibankit/kiban-agent-kit/internal/policy"
	"github.com/kibankit/kiban-agent-kit/kit"
)

// Tools builds the full tool catalog over a kit instance. A non-empty
// allowlist keeps only the named tools, so hosts can expose a read-only
// subset to untrusted agents.
func Tools(k *kit.Kit, allowlist []string) []*Tool {
	all := []*Tool{
		walletAddressTool(k),
		nativeBalanceTool(k),
		tokenInfoTool(k),
		allowanceTool(k),
		transferNativeTool(k),
		transferTokenTool(k),
		approveTokenTool(k),
		swapQuoteTool(k),
		swapTokensTool(k),
		tokenByAddressTool(k),
		searchTickerTool(k),
	}
	if len(allowlist) == 0 {
		return all
	}
	filtered := make([]*Tool, 0, len(all))
	for _, tool := range all {
		if policy.CheckToolAllowed(allowlist, tool.Name) == nil {
			filtered = append(filtered, tool)
		}
	}
	return filtered
}

func walletAddressTool(k *kit.Kit) *Tool {
	return NewTool(
		"get_wallet_address",
		"Get the wallet address and chain id this kit is bound to.",
		nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{
				"address":  k.Address(),
				"chain_id": k.ChainID(),
			}, nil
		},
	)
}

func nativeBalanceTool(k *kit.Kit) *Tool {
	return NewTool(
		"get_native_balance",
		"Get the ETH balance of an address. Defaults to the kit's own wallet.",
		[]Field{
			{Name: "address", Type: TypeString, Description: "0x address to query; omit for the kit wallet"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			return k.GetNativeBalance(ctx, stringArg(args, "address"))
		},
	)
}

func tokenInfoTool(k *kit.Kit) *Tool {
	return NewTool(
		"get_token_info",
		"Get name, symbol, decimals and the wallet balance of a token by symbol or 0x address.",
		[]Field{
			{Name: "token", Type: TypeString, Description: "token symbol (ETH, WETH, USDC, USDT, DAI) or 0x address", Required: true},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			return k.GetTokenInfo(ctx, stringArg(args, "token"))
		},
	)
}

func allowanceTool(k *kit.Kit) *Tool {
	return NewTool(
		"get_allowance",
		"Get how much of a token a spender may move from the wallet.",
		[]Field{
			{Name: "token", Type: TypeString, Description: "token symbol or 0x address", Required: true},
			{Name: "spender", Type: TypeString, Description: "0x address of the spender contract", Required: true},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			return k.GetAllowance(ctx, stringArg(args, "token"), stringArg(args, "spender"))
		},
	)
}

func transferNativeTool(k *kit.Kit) *Tool {
	return NewTool(
		"transfer_native",
		"Send ETH to a recipient. Amount is in ETH, not wei.",
		[]Field{
			{Name: "to", Type: TypeString, Description: "0x address of the recipient", Required: true},
			{Name: "amount", Type: TypeString, Description: "decimal amount in ETH, e.g. \"0.25\"", Required: true},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			return k.TransferNative(ctx, stringArg(args, "to"), stringArg(args, "amount"))
		},
	)
}

func transferTokenTool(k *kit.Kit) *Tool {
	return NewTool(
		"transfer_token",
		"Send an ERC20 token to a recipient. Amount is in human units.",
		[]Field{
			{Name: "token", Type: TypeString, Description: "token symbol or 0x address", Required: true},
			{Name: "to", Type: TypeString, Description: "0x address of the recipient", Required: true},
			{Name: "amount", Type: TypeString, Description: "decimal amount in token units", Required: true},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			return k.TransferToken(ctx, stringArg(args, "token"), stringArg(args, "to"), stringArg(args, "amount"))
		},
	)
}

func approveTokenTool(k *kit.Kit) *Tool {
	return NewTool(
		"approve_token",
		"Approve a spender for an exact token allowance.",
		[]Field{
			{Name: "token", Type: TypeString, Description: "token symbol or 0x address", Required: true},
			{Name: "spender", Type: TypeString, Description: "0x address of the spender contract", Required: true},
			{Name: "amount", Type: TypeString, Description: "decimal amount in token units", Required: true},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			return k.ApproveToken(ctx, stringArg(args, "token"), stringArg(args, "spender"), stringArg(args, "amount"))
		},
	)
}

func swapQuoteTool(k *kit.Kit) *Tool {
	return NewTool(
		"get_swap_quote",
		"Quote an exact-input swap between two tokens without executing it.",
		swapSchema(),
		func(ctx context.Context, args map[string]any) (any, error) {
			return k.GetSwapQuote(ctx, kit.SwapParams{
				TokenIn:         stringArg(args, "token_in"),
				TokenOut:        stringArg(args, "token_out"),
				Amount:          stringArg(args, "amount"),
				SlippagePercent: optionalNumberArg(args, "slippage_percent"),
			})
		},
	)
}

func swapTokensTool(k *kit.Kit) *Tool {
	return NewTool(
		"swap_tokens",
		"Execute an exact-input swap. Approves the router when needed and waits for the swap to confirm.",
		append(swapSchema(), Field{
			Name: "recipient", Type: TypeString,
			Description: "0x address that receives the output, default the wallet itself",
		}),
		func(ctx context.Context, args map[string]any) (any, error) {
			return k.SwapTokens(ctx, kit.SwapParams{
				TokenIn:         stringArg(args, "token_in"),
				TokenOut:        stringArg(args, "token_out"),
				Amount:          stringArg(args, "amount"),
				SlippagePercent: optionalNumberArg(args, "slippage_percent"),
				Recipient:       stringArg(args, "recipient"),
			})
		},
	)
}

func swapSchema() []Field {
	return []Field{
		{Name: "token_in", Type: TypeString, Description: "token to sell, symbol or 0x address", Required: true},
		{Name: "token_out", Type: TypeString, Description: "token to buy, symbol or 0x address", Required: true},
		{Name: "amount", Type: TypeString, Description: "decimal amount of token_in to sell", Required: true},
		{Name: "slippage_percent", Type: TypeNumber, Description: "max acceptable slippage in percent; omit for the 0.5 default, 0 demands the quoted amount"},
	}
}

func tokenByAddressTool(k *kit.Kit) *Tool {
	return NewTool(
		"get_token_by_address",
		"Look up market listings for a token contract address, best 24h volume first.",
		[]Field{
			{Name: "address", Type: TypeString, Description: "0x address of the token contract", Required: true},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			pairs, _, err := k.GetTokenByAddress(ctx, stringArg(args, "address"))
			return pairs, err
		},
	)
}

func searchTickerTool(k *kit.Kit) *Tool {
	return NewTool(
		"search_token_by_ticker",
		"Search market listings by ticker symbol and return the top matches by 24h volume.",
		[]Field{
			{Name: "ticker", Type: TypeString, Description: "ticker symbol to search for, e.g. \"PEPE\"", Required: true},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			pairs, _, err := k.SearchTokenByTicker(ctx, stringArg(args, "ticker"))
			return pairs, err
		},
	)
}
