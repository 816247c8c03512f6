package erc20

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/kibankit/kiban-agent-kit/internal/chain"
	"github.com/kibankit/kiban-agent-kit/internal/chaintest"
	"github.com/kibankit/kiban-agent-kit/internal/registry"
	"github.com/kibankit/kiban-agent-kit/internal/signer"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	tokenAddr  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	holderAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
)

// erc20Handler answers metadata and balance reads the way a stablecoin
// contract would.
func erc20Handler(t *testing.T, balance *big.Int, allowance *big.Int) func(msg ethereum.CallMsg) ([]byte, error) {
	t.Helper()
	parsed, err := registry.ParsedERC20ABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	return func(msg ethereum.CallMsg) ([]byte, error) {
		switch {
		case bytes.HasPrefix(msg.Data, parsed.Methods["name"].ID):
			return parsed.Methods["name"].Outputs.Pack("USD Coin")
		case bytes.HasPrefix(msg.Data, parsed.Methods["symbol"].ID):
			return parsed.Methods["symbol"].Outputs.Pack("USDC")
		case bytes.HasPrefix(msg.Data, parsed.Methods["decimals"].ID):
			return parsed.Methods["decimals"].Outputs.Pack(uint8(6))
		case bytes.HasPrefix(msg.Data, parsed.Methods["balanceOf"].ID):
			return parsed.Methods["balanceOf"].Outputs.Pack(balance)
		case bytes.HasPrefix(msg.Data, parsed.Methods["allowance"].ID):
			return parsed.Methods["allowance"].Outputs.Pack(allowance)
		default:
			t.Fatalf("unexpected call data %x", msg.Data)
			return nil, nil
		}
	}
}

func newTestReader(t *testing.T, backend *chaintest.Backend) *Reader {
	t.Helper()
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testKeyHex})
	if err != nil {
		t.Fatalf("build signer: %v", err)
	}
	client := chain.NewClient(backend, backend.ChainIDValue, s, nil)
	client.SetOptions(chain.Options{PollInterval: 1})
	reader, err := NewReader(client)
	if err != nil {
		t.Fatalf("build reader: %v", err)
	}
	return reader
}

func TestInfoReadsMetadataAndBalance(t *testing.T) {
	backend := chaintest.New(1)
	backend.CallHandler = erc20Handler(t, big.NewInt(1_250_000), big.NewInt(0))
	reader := newTestReader(t, backend)

	info, err := reader.Info(context.Background(), tokenAddr, holderAddr)
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Name != "USD Coin" || info.Symbol != "USDC" || info.Decimals != 6 {
		t.Fatalf("unexpected metadata: %+v", info)
	}
	if info.Balance.Cmp(big.NewInt(1_250_000)) != 0 {
		t.Fatalf("balance = %s", info.Balance)
	}
}

func TestAllowanceDefaultsToZero(t *testing.T) {
	backend := chaintest.New(1)
	backend.CallHandler = erc20Handler(t, big.NewInt(0), big.NewInt(0))
	reader := newTestReader(t, backend)

	spender := common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
	allowance, err := reader.Allowance(context.Background(), tokenAddr, holderAddr, spender)
	if err != nil {
		t.Fatalf("Allowance failed: %v", err)
	}
	if allowance.Sign() != 0 {
		t.Fatalf("allowance = %s, want 0", allowance)
	}
}

func TestApproveSubmitsAndWaits(t *testing.T) {
	backend := chaintest.New(1)
	backend.CallHandler = erc20Handler(t, big.NewInt(0), big.NewInt(0))
	reader := newTestReader(t, backend)

	hash, err := reader.Approve(context.Background(), tokenAddr, holderAddr, big.NewInt(500))
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	sent := backend.SentTo(tokenAddr)
	if len(sent) != 1 || sent[0].Hash() != hash {
		t.Fatalf("expected one approval tx, got %d", len(sent))
	}

	parsed, _ := registry.ParsedERC20ABI()
	if !bytes.HasPrefix(sent[0].Data(), parsed.Methods["approve"].ID) {
		t.Fatalf("calldata is not an approve: %x", sent[0].Data())
	}
}

func TestTransferSubmits(t *testing.T) {
	backend := chaintest.New(1)
	backend.CallHandler = erc20Handler(t, big.NewInt(0), big.NewInt(0))
	reader := newTestReader(t, backend)

	recipient := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	if _, err := reader.Transfer(context.Background(), tokenAddr, recipient, big.NewInt(42)); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if len(backend.SentTo(tokenAddr)) != 1 {
		t.Fatal("expected one transfer tx")
	}
}
