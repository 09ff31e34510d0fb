package auction

import "errors"

var (
	errNilState      = errors.New("auction: state not configured")
	errNilMinter     = errors.New("auction: minter not configured")
	errNilAuthorizer = errors.New("auction: authorizer not configured")
	errNilFunds      = errors.New("auction: funds not configured")

	// Configuration errors, rejected at creation.
	ErrInvalidFundsRecipient = errors.New("auction: invalid funds recipient")
	ErrInvalidDuration       = errors.New("auction: phase durations must be positive")
	ErrInvalidCurrency       = errors.New("auction: unsupported currency")
	ErrInvalidMinimum        = errors.New("auction: minimum viable revenue must be non-negative")

	// Existence and authorization.
	ErrAuctionDoesNotExist = errors.New("auction: auction does not exist")
	ErrBidDoesNotExist     = errors.New("auction: bid does not exist")
	ErrUnauthorized        = errors.New("auction: caller not authorized")

	// Phase violations.
	ErrBidsOnlyAllowedDuringBidPhase       = errors.New("auction: bids only allowed during bid phase")
	ErrRevealsOnlyAllowedDuringRevealPhase = errors.New("auction: reveals only allowed during reveal phase")
	ErrSettlementWindowViolation           = errors.New("auction: settlement only allowed during settle phase")

	// Duplicate actions.
	ErrDuplicateLiveAuction = errors.New("auction: live auction already exists for collection")
	ErrAuctionAlreadyActive = errors.New("auction: auction already has bids")
	ErrAlreadyPlacedBid     = errors.New("auction: bid already placed")
	ErrAlreadyRevealed      = errors.New("auction: bid already revealed")
	ErrAlreadySettled       = errors.New("auction: auction already settled")
	ErrNothingToClaim       = errors.New("auction: nothing to claim")

	// Commitment failures.
	ErrValidBidsMustIncludeValue = errors.New("auction: valid bids must include value")
	ErrCommitmentMismatch        = errors.New("auction: reveal does not match commitment")
	ErrRevealExceedsEscrow       = errors.New("auction: revealed amount exceeds escrowed value")
	ErrAmountOutOfRange          = errors.New("auction: amount does not fit 256 bits")

	// Economic thresholds.
	ErrInvalidClearingPrice      = errors.New("auction: clearing price must be positive")
	ErrDoesNotMeetMinimumRevenue = errors.New("auction: revenue does not meet minimum viable revenue")

	// ErrCollaboratorFailure wraps minting, authorization and transfer errors.
	ErrCollaboratorFailure = errors.New("auction: collaborator failure")
)
