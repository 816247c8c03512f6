// Package erc20 reads and mutates ERC20 token state through a chain
// client: metadata, balances, allowances, approvals and transfers.
package erc20

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/kibankit/kiban-agent-kit/internal/chain"
	kiterr "github.com/kibankit/kiban-agent-kit/internal/errors"
	"github.com/kibankit/kiban-agent-kit/internal/registry"
)

// Info is the on-chain metadata of a token plus one holder's balance.
type Info struct {
	Address  common.Address
	Name     string
	Symbol   string
	Decimals int
	Balance  *big.Int
}

type Reader struct {
	client *chain.Client
	abi    abi.ABI
}

func NewReader(client *chain.Client) (*Reader, error) {
	parsed, err := registry.ParsedERC20ABI()
	if err != nil {
		return nil, err
	}
	return &Reader{client: client, abi: parsed}, nil
}

// Info fetches name, symbol, decimals and the holder's balance. The
// four reads are independent and issued concurrently. Tokens without
// optional metadata methods fail the whole read; the mainstream tokens
// the kit targets all implement them.
func (r *Reader) Info(ctx context.Context, token, holder common.Address) (Info, error) {
	info := Info{Address: token}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := r.client.Read(gctx, token, r.abi, "name")
		if err != nil {
			return err
		}
		info.Name, err = asString(out, "name")
		return err
	})
	g.Go(func() error {
		out, err := r.client.Read(gctx, token, r.abi, "symbol")
		if err != nil {
			return err
		}
		info.Symbol, err = asString(out, "symbol")
		return err
	})
	g.Go(func() error {
		decimals, err := r.Decimals(gctx, token)
		if err != nil {
			return err
		}
		info.Decimals = decimals
		return nil
	})
	g.Go(func() error {
		balance, err := r.BalanceOf(gctx, token, holder)
		if err != nil {
			return err
		}
		info.Balance = balance
		return nil
	})
	if err := g.Wait(); err != nil {
		return Info{}, err
	}
	return info, nil
}

func (r *Reader) Decimals(ctx context.Context, token common.Address) (int, error) {
	out, err := r.client.Read(ctx, token, r.abi, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, kiterr.New(kiterr.CodeContractRead, "decimals returned unexpected output")
	}
	value, ok := out[0].(uint8)
	if !ok {
		return 0, kiterr.New(kiterr.CodeContractRead, "decimals returned unexpected type")
	}
	return int(value), nil
}

func (r *Reader) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	out, err := r.client.Read(ctx, token, r.abi, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	return asBigInt(out, "balanceOf")
}

// Allowance returns what spender may move on owner's behalf. A token
// that has never been approved reports zero rather than an error.
func (r *Reader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := r.client.Read(ctx, token, r.abi, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(out, "allowance")
}

// Approve submits an approval for exactly amount and waits for it to be
// mined before returning.
func (r *Reader) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := r.abi.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, kiterr.Wrap(kiterr.CodeInternal, "pack approve calldata", err)
	}
	hash, _, err := r.client.SubmitAndWait(ctx, token, data, nil)
	if err != nil {
		return hash, err
	}
	return hash, nil
}

// Transfer submits a token transfer and waits for the receipt.
func (r *Reader) Transfer(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error) {
	data, err := r.abi.Pack("transfer", to, amount)
	if err != nil {
		return common.Hash{}, kiterr.Wrap(kiterr.CodeInternal, "pack transfer calldata", err)
	}
	hash, _, err := r.client.SubmitAndWait(ctx, token, data, nil)
	if err != nil {
		return hash, err
	}
	return hash, nil
}

func asString(out []any, method string) (string, error) {
	if len(out) != 1 {
		return "", kiterr.New(kiterr.CodeContractRead, fmt.Sprintf("%s returned unexpected output", method))
	}
	value, ok := out[0].(string)
	if !ok {
		return "", kiterr.New(kiterr.CodeContractRead, fmt.Sprintf("%s returned unexpected type", method))
	}
	return value, nil
}

func asBigInt(out []any, method string) (*big.Int, error) {
	if len(out) != 1 {
		return nil, kiterr.New(kiterr.CodeContractRead, fmt.Sprintf("%s returned unexpected output", method))
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, kiterr.New(kiterr.CodeContractRead, fmt.Sprintf("%s returned unexpected type", method))
	}
	return value, nil
}
