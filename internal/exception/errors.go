package exception

import "errors"

// Ledger errors
var (
	ErrInvalidAmount        = errors.New("account: invalid amount")
	ErrInsufficientFunds    = errors.New("account: insufficient funds")
	ErrInsufficientHoldings = errors.New("account: insufficient holdings")
	ErrPersistence          = errors.New("account: persistence failed")
)

// Market data errors
var (
	ErrSymbolNotFound = errors.New("marketdata: symbol not found")
)

// Decision errors
var (
	ErrDecisionTimeout = errors.New("decision: timed out")
	ErrDecisionError   = errors.New("decision: failed")
)

// Risk errors
var (
	ErrPositionLimit = errors.New("risk: max position size exceeded")
	ErrStopLoss      = errors.New("risk: stop loss breached")
)

// Floor errors
var (
	ErrTurnInProgress  = errors.New("trader: turn already in progress")
	ErrFloorRunning    = errors.New("floor: already running")
	ErrDuplicateTrader = errors.New("floor: duplicate trader")
	ErrNoTraders       = errors.New("floor: no traders")
)

var (
	ErrInvalidConfig = errors.New("config: invalid")
)
