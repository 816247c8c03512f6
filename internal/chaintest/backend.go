// Package chaintest provides an in-memory chain backend for tests. It
// answers contract reads through a scriptable handler, accepts signed
// transactions, and serves successful receipts for everything sent.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type Backend struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	Balances     map[common.Address]*big.Int

	// CallHandler answers eth_call requests. Required for contract reads.
	CallHandler func(msg ethereum.CallMsg) ([]byte, error)

	// ReadCalls records every CallContract invocation in order.
	ReadCalls []ethereum.CallMsg
	// Sent records every broadcast transaction in order.
	Sent []*types.Transaction

	// SendErr, when set, fails the next SendTransaction.
	SendErr error

	nonce uint64
}

func New(chainID int64) *Backend {
	return &Backend{
		ChainIDValue: big.NewInt(chainID),
		Balances:     map[common.Address]*big.Int{},
	}
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.ChainIDValue), nil
}

func (b *Backend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	b.ReadCalls = append(b.ReadCalls, msg)
	handler := b.CallHandler
	b.mu.Unlock()
	if handler == nil {
		return nil, fmt.Errorf("no call handler configured")
	}
	return handler(msg)
}

func (b *Backend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if balance, ok := b.Balances[account]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce, nil
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{
		Number:  big.NewInt(1),
		BaseFee: big.NewInt(10_000_000_000),
	}, nil
}

func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SendErr != nil {
		err := b.SendErr
		b.SendErr = nil
		return err
	}
	b.Sent = append(b.Sent, tx)
	b.nonce++
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range b.Sent {
		if tx.Hash() == txHash {
			return &types.Receipt{
				Status:      types.ReceiptStatusSuccessful,
				TxHash:      txHash,
				BlockNumber: big.NewInt(1),
				GasUsed:     21_000,
			}, nil
		}
	}
	return nil, ethereum.NotFound
}

// SentTo returns the broadcast transactions addressed to a contract.
func (b *Backend) SentTo(to common.Address) []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*types.Transaction, 0)
	for _, tx := range b.Sent {
		if tx.To() != nil && *tx.To() == to {
			out = append(out, tx)
		}
	}
	return out
}
