package bridge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/openbridge/openbridge-backend/internal/storage"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err         error
		code        Code
		message     string
		recoverable bool
	}{
		{errors.New("User rejected the request."), CodeUserRejected, "Transaction was rejected", true},
		{errors.New("MetaMask Tx Signature: User denied transaction signature."), CodeUserRejected, "Transaction was rejected", true},
		{errors.New("ERC20: transfer amount exceeds balance, insufficient balance"), CodeInsufficientBalance, "Insufficient USDC balance", false},
		{errors.New("insufficient funds for gas * price + value"), CodeInsufficientGas, "Insufficient gas", false},
		{errors.New("Failed to fetch"), CodeNetworkError, "Network error", true},
		{errors.New("request timeout after 30s"), CodeNetworkError, "Network error", true},
		{errors.New("attestation pending"), CodeAttestationTimeout, "Attestation timeout", true},
		{errors.New("execution reverted"), CodeTransactionFailed, "Transaction failed", true},
		{errors.New("something odd"), CodeUnknown, "An error occurred", true},
		{ErrWalletNotConnected, CodeWalletNotConnected, "Wallet not connected", true},
		{fmt.Errorf("%w: source 5", ErrUnsupportedChain), CodeUnsupportedChain, "Unsupported chain", true},
		{ErrInvalidAmount, CodeInvalidAmount, "Invalid amount", true},
		{ErrMissingBurnTx, CodeNotResumable, "Cannot resume: missing burn transaction", false},
		{fmt.Errorf("%w: x", storage.ErrNotFound), CodeTransferNotFound, "Transfer not found", false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.message, got.Message)
			assert.Equal(t, tt.recoverable, got.Recoverable)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassify_DetailsCarryRawMessage(t *testing.T) {
	got := Classify(errors.New("execution reverted: paused"))
	assert.Equal(t, "execution reverted: paused", got.Details)
	assert.Equal(t, "Transaction failed: execution reverted: paused", got.Error())
}

func TestClassify_IsIdempotent(t *testing.T) {
	first := Classify(errors.New("user rejected"))
	wrapped := fmt.Errorf("bridge: %w", first)
	assert.Same(t, first, Classify(wrapped))
	assert.Nil(t, Classify(nil))
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(errors.New("network down")))
	assert.False(t, IsRecoverable(errors.New("insufficient balance")))
}
