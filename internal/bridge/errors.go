package bridge

import (
	"errors"
	"strings"

	"github.com/openbridge/openbridge-backend/internal/storage"
)

var (
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrUnsupportedChain   = errors.New("unsupported chain")
	ErrInvalidAmount      = errors.New("amount must be a positive decimal")
	ErrWalletMismatch     = errors.New("connected wallet does not match transfer wallet")
	ErrNotResumable       = errors.New("transfer cannot be resumed")
	ErrMissingBurnTx      = errors.New("cannot resume: missing burn transaction")
	ErrTransferFailed     = errors.New("transfer failed")
	ErrTransferInProgress = errors.New("a transfer is in progress")
	// ErrCancelled is returned when a run is reset or superseded by a newer one.
	ErrCancelled = errors.New("run cancelled")
)

type Code string

const (
	CodeWalletNotConnected  Code = "WALLET_NOT_CONNECTED"
	CodeUnsupportedChain    Code = "UNSUPPORTED_CHAIN"
	CodeInvalidAmount       Code = "INVALID_AMOUNT"
	CodeWalletMismatch      Code = "WALLET_MISMATCH"
	CodeNotResumable        Code = "NOT_RESUMABLE"
	CodeTransferNotFound    Code = "TRANSFER_NOT_FOUND"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeInsufficientGas     Code = "INSUFFICIENT_GAS"
	CodeUserRejected        Code = "USER_REJECTED"
	CodeNetworkError        Code = "NETWORK_ERROR"
	CodeAttestationTimeout  Code = "ATTESTATION_TIMEOUT"
	CodeTransactionFailed   Code = "TRANSACTION_FAILED"
	CodeCancelled           Code = "CANCELLED"
	CodeUnknown             Code = "UNKNOWN"
)

// Error is a classified bridge failure with a user-facing message.
type Error struct {
	Code        Code   `json:"code"`
	Message     string `json:"message"`
	Details     string `json:"details,omitempty"`
	Recoverable bool   `json:"recoverable"`
	Err         error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Details == "" {
		return e.Message
	}
	return e.Message + ": " + e.Details
}

func (e *Error) Unwrap() error { return e.Err }

var sentinelErrors = []struct {
	err         error
	code        Code
	message     string
	recoverable bool
}{
	{ErrWalletNotConnected, CodeWalletNotConnected, "Wallet not connected", true},
	{ErrUnsupportedChain, CodeUnsupportedChain, "Unsupported chain", true},
	{ErrInvalidAmount, CodeInvalidAmount, "Invalid amount", true},
	{ErrWalletMismatch, CodeWalletMismatch, "Connected wallet does not match transfer wallet", true},
	{ErrMissingBurnTx, CodeNotResumable, "Cannot resume: missing burn transaction", false},
	{ErrNotResumable, CodeNotResumable, "Transfer cannot be resumed", false},
	{storage.ErrNotFound, CodeTransferNotFound, "Transfer not found", false},
	{ErrCancelled, CodeCancelled, "Transfer interrupted", true},
}

// Classify maps err onto an *Error. Errors that are already classified are
// returned as is; SDK and wallet errors are matched on their message.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	for _, s := range sentinelErrors {
		if errors.Is(err, s.err) {
			return &Error{Code: s.code, Message: s.message, Recoverable: s.recoverable, Err: err}
		}
	}

	raw := err.Error()
	msg := strings.ToLower(raw)
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}

	switch {
	case has("user rejected", "user denied"):
		return &Error{Code: CodeUserRejected, Message: "Transaction was rejected",
			Details: "You declined the transaction in your wallet.", Recoverable: true, Err: err}
	case has("insufficient") && has("balance"):
		return &Error{Code: CodeInsufficientBalance, Message: "Insufficient USDC balance",
			Details: "You don't have enough USDC for this transfer.", Err: err}
	case has("insufficient") && has("gas", "funds"):
		return &Error{Code: CodeInsufficientGas, Message: "Insufficient gas",
			Details: "You need more native tokens to pay for gas fees.", Err: err}
	case has("network", "fetch", "timeout"):
		return &Error{Code: CodeNetworkError, Message: "Network error",
			Details: "Please check your connection and try again.", Recoverable: true, Err: err}
	case has("attestation"):
		return &Error{Code: CodeAttestationTimeout, Message: "Attestation timeout",
			Details:     "Circle attestation is taking longer than expected. The transfer may still complete.",
			Recoverable: true, Err: err}
	case has("reverted", "failed"):
		return &Error{Code: CodeTransactionFailed, Message: "Transaction failed", Details: raw, Recoverable: true, Err: err}
	default:
		return &Error{Code: CodeUnknown, Message: "An error occurred", Details: raw, Recoverable: true, Err: err}
	}
}

// IsRecoverable reports whether the user can retry after err.
func IsRecoverable(err error) bool {
	if be := Classify(err); be != nil {
		return be.Recoverable
	}
	return true
}
