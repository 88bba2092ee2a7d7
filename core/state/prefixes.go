package state

import (
	"encoding/hex"
	"strings"
)

var (
	paramStorePrefix           = []byte("params/")
	predictionLoanPrefix       = []byte("prediction/loan/")
	predictionVotePrefix       = []byte("prediction/vote/")
	predictionResolutionPrefix = []byte("prediction/resolution/")
	predictionLoanIndexKey     = []byte("prediction/loans")
	tokenMetaPrefix            = []byte("token/meta/")
	tokenListKey               = []byte("token/list")
	tokenBalancePrefix         = []byte("token/balance/")
	tokenAllowancePrefix       = []byte("token/allowance/")
	tokenSupplyPrefix          = []byte("token/supply/")
)

func joinKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return buf
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ParamStoreKey namespaces a parameter name.
func ParamStoreKey(name string) []byte {
	return joinKey(paramStorePrefix, []byte(strings.TrimSpace(name)))
}

// PredictionLoanKey addresses the registry record of a loan.
func PredictionLoanKey(loan [20]byte) []byte {
	return joinKey(predictionLoanPrefix, []byte(hex.EncodeToString(loan[:])))
}

// PredictionVoteKey addresses a staker's position on a loan.
func PredictionVoteKey(loan, staker [20]byte) []byte {
	return joinKey(predictionVotePrefix,
		[]byte(hex.EncodeToString(loan[:])), []byte("/"), []byte(hex.EncodeToString(staker[:])))
}

// PredictionResolutionKey addresses the frozen terminal aggregates of a loan.
func PredictionResolutionKey(loan [20]byte) []byte {
	return joinKey(predictionResolutionPrefix, []byte(hex.EncodeToString(loan[:])))
}

// TokenBalanceKey addresses an account balance for a token.
func TokenBalanceKey(symbol string, owner [20]byte) []byte {
	return joinKey(tokenBalancePrefix,
		[]byte(normalizeSymbol(symbol)), []byte("/"), []byte(hex.EncodeToString(owner[:])))
}

// TokenAllowanceKey addresses the amount spender may move on behalf of owner.
func TokenAllowanceKey(symbol string, owner, spender [20]byte) []byte {
	return joinKey(tokenAllowancePrefix,
		[]byte(normalizeSymbol(symbol)), []byte("/"),
		[]byte(hex.EncodeToString(owner[:])), []byte("/"),
		[]byte(hex.EncodeToString(spender[:])))
}

func tokenSupplyKey(symbol string) []byte {
	return joinKey(tokenSupplyPrefix, []byte(normalizeSymbol(symbol)))
}

func tokenMetadataKey(symbol string) []byte {
	return joinKey(tokenMetaPrefix, []byte(normalizeSymbol(symbol)))
}
