package chain

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// FailureKind classifies a reverted fund contract call.
type FailureKind int

const (
	FailureUnrecognized FailureKind = iota
	FailureInvalidTarget
	FailureZeroAmount
	FailureInsufficientTokens
	FailureInvestmentRejected
	FailureReverted // Error(string) with a reason
)

func (k FailureKind) String() string {
	switch k {
	case FailureInvalidTarget:
		return "invalid investment contract"
	case FailureZeroAmount:
		return "zero amount"
	case FailureInsufficientTokens:
		return "insufficient tokens"
	case FailureInvestmentRejected:
		return "investment rejected by target"
	case FailureReverted:
		return "reverted"
	default:
		return "unrecognized failure"
	}
}

// failureSelectors maps custom error selectors of the fund contract.
var failureSelectors = map[[4]byte]FailureKind{
	selector("InvalidInvestmentContract()"): FailureInvalidTarget,
	selector("ZeroAmount()"):                FailureZeroAmount,
	selector("InsufficientTokens()"):        FailureInsufficientTokens,
	selector("InvestmentRejected()"):        FailureInvestmentRejected,
}

var errorStringSelector = selector("Error(string)")

func selector(sig string) [4]byte {
	var s [4]byte
	copy(s[:], crypto.Keccak256([]byte(sig))[:4])
	return s
}

// RevertError is a decoded contract revert.
type RevertError struct {
	Kind   FailureKind
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	switch {
	case e.Kind == FailureReverted:
		return fmt.Sprintf("execution reverted: %s", e.Reason)
	case e.Kind != FailureUnrecognized:
		return fmt.Sprintf("execution reverted: %s", e.Kind)
	case len(e.Data) > 0:
		return fmt.Sprintf("execution reverted: unrecognized data 0x%s", hex.EncodeToString(e.Data))
	case e.Reason != "":
		return e.Reason
	default:
		return "execution reverted"
	}
}

// DecodeRevert classifies revert data. Unknown selectors keep the raw payload.
func DecodeRevert(data []byte, message string) *RevertError {
	e := &RevertError{Kind: FailureUnrecognized, Data: bytes.Clone(data), Reason: message}
	if len(data) < 4 {
		return e
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	if kind, ok := failureSelectors[sel]; ok {
		e.Kind = kind
		return e
	}
	if sel == errorStringSelector {
		if reason, err := abi.UnpackRevert(data); err == nil {
			e.Kind = FailureReverted
			e.Reason = reason
		}
	}
	return e
}
