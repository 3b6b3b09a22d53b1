package ledger

import "github.com/odyssey-erp/odyssey-resort/internal/shared"

var (
	// ErrInvalidTransaction indicates a posting that can never be applied.
	ErrInvalidTransaction = shared.Classify("ledger: invalid transaction", shared.ErrValidation)
	// ErrUnknownAccount indicates a posting against a code missing from the chart.
	ErrUnknownAccount = shared.Classify("ledger: invalid transaction: unknown account", ErrInvalidTransaction, shared.ErrNotFound)
	// ErrAccountNotFound indicates missing account.
	ErrAccountNotFound = shared.Classify("ledger: account not found", shared.ErrNotFound)
	// ErrInvalidAccount indicates unusable account input.
	ErrInvalidAccount = shared.Classify("ledger: invalid account", shared.ErrValidation)
	// ErrDuplicateAccount indicates the account code already exists.
	ErrDuplicateAccount = shared.Classify("ledger: account code already exists", shared.ErrConflict)
	// ErrAccountInUse indicates an account still referenced by transactions.
	ErrAccountInUse = shared.Classify("ledger: account referenced by transactions", shared.ErrConflict)
	// ErrSourceConflict indicates the source link already exists.
	ErrSourceConflict = shared.Classify("ledger: source link conflict", shared.ErrConflict)
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = shared.Classify("ledger: source already linked", shared.ErrConflict)
	// ErrRoleUnmapped indicates an account role without a code.
	ErrRoleUnmapped = shared.Classify("ledger: account role not mapped", shared.ErrValidation)
)
