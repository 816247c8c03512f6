package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	kiterr "github.com/kibankit/kiban-agent-kit/internal/errors"
)

// dataError is implemented by geth RPC errors that carry revert data.
type dataError interface {
	ErrorData() interface{}
}

// wrapEVMError turns a node-side call failure into a kit error, decoding
// the revert reason when the node attached one. Insufficient-funds
// rejections get their own code so callers can enrich the message.
func wrapEVMError(code kiterr.Code, op string, err error) error {
	if IsInsufficientFunds(err) {
		return kiterr.Wrap(kiterr.CodeInsufficientFunds, op, err)
	}
	if reason, ok := revertReason(err); ok {
		return kiterr.New(code, fmt.Sprintf("%s: execution reverted: %s", op, reason))
	}
	return kiterr.Wrap(code, op, err)
}

func revertReason(err error) (string, bool) {
	var de dataError
	if !asDataError(err, &de) {
		return "", false
	}
	raw, ok := de.ErrorData().(string)
	if !ok {
		return "", false
	}
	data, decodeErr := hexutil.Decode(raw)
	if decodeErr != nil {
		return "", false
	}
	return decodeRevertData(data)
}

func asDataError(err error, target *dataError) bool {
	for err != nil {
		if de, ok := err.(dataError); ok {
			*target = de
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// decodeRevertData interprets EVM revert payloads. Error(string) and
// Panic(uint256) are decoded; custom errors surface as their selector.
func decodeRevertData(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	selector := [4]byte{data[0], data[1], data[2], data[3]}
	switch selector {
	case [4]byte{0x08, 0xc3, 0x79, 0xa0}: // Error(string)
		stringType, err := abi.NewType("string", "", nil)
		if err != nil {
			return "", false
		}
		values, err := abi.Arguments{{Type: stringType}}.Unpack(data[4:])
		if err != nil || len(values) != 1 {
			return "", false
		}
		reason, ok := values[0].(string)
		if !ok {
			return "", false
		}
		return reason, true
	case [4]byte{0x4e, 0x48, 0x7b, 0x71}: // Panic(uint256)
		if len(data) < 36 {
			return "", false
		}
		code := new(big.Int).SetBytes(data[4:36])
		return fmt.Sprintf("panic code 0x%s", code.Text(16)), true
	default:
		return fmt.Sprintf("custom error 0x%s", strings.ToLower(hex.EncodeToString(data[:4]))), true
	}
}
