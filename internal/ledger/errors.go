package ledger

import "github.com/cockroachdb/errors"

// Error kinds returned by ledger operations. Callers test them with errors.Is.
var (
	// ErrValidation marks a transaction or block that is malformed or unsigned.
	ErrValidation = errors.New("validation failed")

	// ErrSignatureMismatch is returned when signing with a key that does not
	// own the sender address. It also matches ErrValidation.
	ErrSignatureMismatch = errors.Mark(errors.New("private key does not match sender address"), ErrValidation)

	// ErrInsufficientFunds is returned when a sender cannot cover amount plus fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidChain is returned for a candidate chain or block with a broken link.
	ErrInvalidChain = errors.New("invalid chain")

	// ErrShorterChain is returned when a candidate chain is not strictly longer.
	ErrShorterChain = errors.New("candidate chain is not longer than local chain")

	// ErrStaleTip is returned when a mined block's parent stopped being the tip
	// before the search finished.
	ErrStaleTip = errors.New("chain tip moved during mining")
)
