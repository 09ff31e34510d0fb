package rpc

import (
	"context"
	"errors"
	"net/http"

	"vsachain/core"
	"vsachain/native/auction"
	"vsachain/native/bank"
	"vsachain/native/collection"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeRateLimited    = -32020

	codeNotFound          = -32040
	codePhaseViolation    = -32041
	codeConflict          = -32042
	codeCommitmentFailure = -32043
	codeEconomicThreshold = -32044
	codeForbidden         = -32045
	codeInternal          = -32046
)

type errorClass struct {
	status int
	code   int
	errs   []error
}

// Order matters: insufficient balance surfaces wrapped in a collaborator
// failure and must be classified first.
var errorClasses = []errorClass{
	{http.StatusUnauthorized, codeUnauthorized, []error{core.ErrInvalidNonce}},
	{http.StatusBadRequest, codeEconomicThreshold, []error{
		bank.ErrInsufficientBalance,
		auction.ErrInvalidClearingPrice,
		auction.ErrDoesNotMeetMinimumRevenue,
	}},
	{http.StatusNotFound, codeNotFound, []error{
		auction.ErrAuctionDoesNotExist,
		auction.ErrBidDoesNotExist,
		collection.ErrCollectionNotFound,
		collection.ErrUnitNotFound,
	}},
	{http.StatusConflict, codePhaseViolation, []error{
		auction.ErrBidsOnlyAllowedDuringBidPhase,
		auction.ErrRevealsOnlyAllowedDuringRevealPhase,
		auction.ErrSettlementWindowViolation,
	}},
	{http.StatusConflict, codeConflict, []error{
		auction.ErrDuplicateLiveAuction,
		auction.ErrAuctionAlreadyActive,
		auction.ErrAlreadyPlacedBid,
		auction.ErrAlreadyRevealed,
		auction.ErrAlreadySettled,
		auction.ErrNothingToClaim,
		collection.ErrCollectionExists,
	}},
	{http.StatusBadRequest, codeCommitmentFailure, []error{
		auction.ErrValidBidsMustIncludeValue,
		auction.ErrCommitmentMismatch,
		auction.ErrRevealExceedsEscrow,
		auction.ErrAmountOutOfRange,
	}},
	{http.StatusForbidden, codeForbidden, []error{
		auction.ErrUnauthorized,
		collection.ErrNotOwner,
		core.ErrFaucetDisabled,
	}},
	{http.StatusBadRequest, codeInvalidParams, []error{
		auction.ErrInvalidFundsRecipient,
		auction.ErrInvalidDuration,
		auction.ErrInvalidCurrency,
		auction.ErrInvalidMinimum,
		collection.ErrInvalidOwner,
		collection.ErrInvalidAddress,
		collection.ErrInvalidRecipient,
		bank.ErrUnsupportedToken,
		bank.ErrInvalidAmount,
	}},
	{http.StatusInternalServerError, codeInternal, []error{auction.ErrCollaboratorFailure}},
}

// classify maps a node error onto an HTTP status and JSON-RPC code.
func classify(err error) (int, int) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, codeInternal
	}
	for _, class := range errorClasses {
		for _, target := range class.errs {
			if errors.Is(err, target) {
				return class.status, class.code
			}
		}
	}
	return http.StatusInternalServerError, codeInternal
}

func writeNodeError(w http.ResponseWriter, id interface{}, err error) int {
	status, code := classify(err)
	writeError(w, status, id, code, err.Error(), nil)
	return code
}
