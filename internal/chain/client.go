package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	kiterr "github.com/kibankit/kiban-agent-kit/internal/errors"
	"github.com/kibankit/kiban-agent-kit/internal/signer"
)

// Backend is the subset of ethclient.Client the kit relies on. Tests
// substitute an in-memory implementation.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Options struct {
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
	GasMultiplier  float64
}

func DefaultOptions() Options {
	return Options{
		PollInterval:   2 * time.Second,
		ReceiptTimeout: 2 * time.Minute,
		GasMultiplier:  1.2,
	}
}

// Client wraps a chain backend with the read/write primitives the kit
// needs: contract reads, EIP-1559 submission and receipt polling. It is
// safe for concurrent use; all state is set at construction.
type Client struct {
	backend Backend
	signer  signer.Signer
	chainID *big.Int
	opts    Options
	log     *zap.Logger
	closeFn func()
}

// Dial connects to the RPC endpoint and verifies it serves the expected
// chain.
func Dial(ctx context.Context, rpcURL string, chainID int64, txSigner signer.Signer, log *zap.Logger) (*Client, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, kiterr.New(kiterr.CodeConfig, "missing rpc endpoint")
	}
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, kiterr.Wrap(kiterr.CodeUnavailable, "connect rpc", err)
	}
	remote, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, kiterr.Wrap(kiterr.CodeUnavailable, "read chain id", err)
	}
	if remote.Int64() != chainID {
		eth.Close()
		return nil, kiterr.New(kiterr.CodeConfig, fmt.Sprintf("rpc endpoint serves chain %d, expected %d", remote.Int64(), chainID))
	}
	client := NewClient(eth, remote, txSigner, log)
	client.closeFn = eth.Close
	return client, nil
}

// NewClient wraps an existing backend. Used by Dial and by tests.
func NewClient(backend Backend, chainID *big.Int, txSigner signer.Signer, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		backend: backend,
		signer:  txSigner,
		chainID: new(big.Int).Set(chainID),
		opts:    DefaultOptions(),
		log:     log,
	}
}

func (c *Client) SetOptions(opts Options) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 2 * time.Minute
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	c.opts = opts
}

func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Account returns the signing address, or the zero address for a
// read-only client.
func (c *Client) Account() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, kiterr.Wrap(kiterr.CodeUnavailable, "read native balance", err)
	}
	return balance, nil
}

// Read issues a read-only contract call and unpacks the outputs. A target
// with no deployed code fails instead of returning empty data.
func (c *Client) Read(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, kiterr.Wrap(kiterr.CodeInternal, fmt.Sprintf("pack %s calldata", method), err)
	}
	msg := ethereum.CallMsg{From: c.Account(), To: &to, Data: data}
	out, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, wrapEVMError(kiterr.CodeContractRead, fmt.Sprintf("call %s", method), err)
	}
	if len(out) == 0 {
		code, codeErr := c.backend.CodeAt(ctx, to, nil)
		if codeErr == nil && len(code) == 0 {
			return nil, kiterr.New(kiterr.CodeContractRead, fmt.Sprintf("no contract code at %s", to.Hex()))
		}
	}
	values, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, kiterr.Wrap(kiterr.CodeContractRead, fmt.Sprintf("decode %s output", method), err)
	}
	return values, nil
}

// Submit builds, signs and broadcasts a dynamic-fee transaction carrying
// the given calldata and native value. It returns as soon as the
// transaction is accepted by the node.
func (c *Client) Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, kiterr.New(kiterr.CodeConfig, "client has no signing key")
	}
	if value == nil {
		value = big.NewInt(0)
	}
	from := c.signer.Address()
	msg := ethereum.CallMsg{From: from, To: &to, Value: value, Data: data}

	gasLimit, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, wrapEVMError(kiterr.CodeContractCall, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * c.opts.GasMultiplier)

	tipCap, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	header, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, kiterr.Wrap(kiterr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, kiterr.Wrap(kiterr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := c.signer.SignTx(c.chainID, tx)
	if err != nil {
		return common.Hash{}, kiterr.Wrap(kiterr.CodeInternal, "sign transaction", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, wrapEVMError(kiterr.CodeContractCall, "broadcast transaction", err)
	}
	c.log.Debug("transaction submitted",
		zap.String("hash", signed.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("gas_limit", gasLimit),
		zap.String("value", value.String()),
	)
	return signed.Hash(), nil
}

// WaitMined blocks until the transaction is mined, the receipt timeout
// elapses, or the context is cancelled. A reverted transaction is an
// error.
func (c *Client) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.opts.ReceiptTimeout)
	defer cancel()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				c.log.Debug("transaction confirmed",
					zap.String("hash", hash.Hex()),
					zap.Uint64("block", receipt.BlockNumber.Uint64()),
					zap.Uint64("gas_used", receipt.GasUsed),
				)
				return receipt, nil
			}
			return receipt, kiterr.New(kiterr.CodeContractCall, "transaction reverted on-chain")
		}
		if waitCtx.Err() != nil {
			return nil, kiterr.Wrap(kiterr.CodeUnavailable, "timed out waiting for receipt", waitCtx.Err())
		}
		// Not found yet, or a transient RPC failure; poll again until
		// the timeout.
		select {
		case <-waitCtx.Done():
			return nil, kiterr.Wrap(kiterr.CodeUnavailable, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// SubmitAndWait submits the call and blocks for its receipt.
func (c *Client) SubmitAndWait(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, *types.Receipt, error) {
	hash, err := c.Submit(ctx, to, data, value)
	if err != nil {
		return common.Hash{}, nil, err
	}
	receipt, err := c.WaitMined(ctx, hash)
	if err != nil {
		return hash, nil, err
	}
	return hash, receipt, nil
}

// IsInsufficientFunds reports whether the underlying node rejected a
// submission because the sender cannot cover value plus gas.
func IsInsufficientFunds(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "insufficient funds")
}
