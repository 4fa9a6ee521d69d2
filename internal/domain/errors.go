package domain

import (
	"errors"
	"fmt"
)

// Error is a ledger error with a stable numeric and symbolic code. Clients
// branch on the code, so codes must never be renumbered once released.
type Error struct {
	Code   uint32
	Symbol string
	msg    string
}

// NewError creates a coded error. Use the package-level sentinels for all
// known failure kinds; NewError exists for tests and future codes.
func NewError(code uint32, symbol, msg string) *Error {
	return &Error{Code: code, Symbol: symbol, msg: msg}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Symbol, e.Code, e.msg)
}

// Market ledger errors (1000-1099).
var (
	ErrMarketAlreadyExists  = NewError(1000, "MarketAlreadyExists", "a market already exists for this reference token")
	ErrUnknownFacet         = NewError(1001, "UnknownFacet", "the selected facet is not present in the given market")
	ErrMarketNotOpen        = NewError(1002, "MarketNotOpen", "the market is not accepting stakes")
	ErrNotAdmin             = NewError(1003, "NotAdmin", "only the market admin may perform this operation")
	ErrFacetAlreadyResolved = NewError(1004, "FacetAlreadyResolved", "this facet has already been resolved")
	ErrMarketNotResolved    = NewError(1005, "MarketNotResolved", "the facet has not been resolved yet")
	ErrStakeAlreadySettled  = NewError(1006, "StakeAlreadySettled", "this stake has already been settled")
	ErrInvalidOutcome       = NewError(1007, "InvalidOutcome", "the outcome label was never staked in this facet")
	ErrTimeoutOutOfRange    = NewError(1008, "TimeoutOutOfRange", "the market timeout is outside the allowed range")
	ErrTooManyStakes        = NewError(1009, "TooManyStakes", "the facet has reached its maximum number of stakes")
	ErrInvalidAmount        = NewError(1010, "InvalidAmount", "stake amount must be positive")
	ErrMarketNotClosed      = NewError(1011, "MarketNotClosed", "the market deadline has not passed yet")
	ErrNoFacets             = NewError(1012, "NoFacets", "a market needs at least one facet")
	ErrDuplicateFacet       = NewError(1013, "DuplicateFacet", "facet list contains duplicates")
)

// Treasury errors (1100-1199).
var (
	ErrAlreadyInitialised      = NewError(1100, "AlreadyInitialised", "the treasury has already been initialised")
	ErrSignerNotAuthority      = NewError(1101, "SignerNotAuthority", "the signer provided is not the authority of the treasury")
	ErrInvalidProof            = NewError(1102, "InvalidProof", "a required authorization proof is missing or invalid")
	ErrInsufficientBalance     = NewError(1103, "InsufficientBalance", "the debited side does not hold enough balance")
	ErrBalancesDisagree        = NewError(1104, "BalancesDisagree", "token account balance does not match the recorded total")
	ErrTreasuryNotInitialised  = NewError(1105, "TreasuryNotInitialised", "the treasury has not been initialised")
	ErrCounterpartyNotDistinct = NewError(1106, "CounterpartyNotDistinct", "counterparty must differ from the authority")
)

// Token mint errors (1200-1299). The numeric ordering of the first five
// mirrors the mint's initialisation checks.
var (
	ErrWrongName              = NewError(1200, "WrongName", "wrong token name given at initialisation")
	ErrWrongSymbol            = NewError(1201, "WrongSymbol", "wrong token symbol given at initialisation")
	ErrWrongURI               = NewError(1202, "WrongUri", "wrong token uri given at initialisation")
	ErrWrongDecimals          = NewError(1203, "WrongDecimals", "wrong number of token decimals given at initialisation")
	ErrWrongSigner            = NewError(1204, "WrongSigner", "not the expected transaction signer")
	ErrMintAlreadyInitialised = NewError(1205, "MintAlreadyInitialised", "the token mint has already been initialised")
	ErrMintNotInitialised     = NewError(1206, "MintNotInitialised", "the token mint has not been initialised")
)

// Infrastructure sentinels without ledger codes.
var (
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")
)
