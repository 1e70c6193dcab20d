package core

import "github.com/pkg/errors"

var (
	// fixed-point arithmetic
	ErrOverflow        = errors.New("fixed-point overflow")
	ErrDivisionByZero  = errors.New("division by zero")
	ErrInvalidRawBytes = errors.New("raw fixed-point value must be 16 bytes")

	// registry / lookup
	UnknownAsset  = errors.New("token index not registered in group")
	DuplicateBank = errors.New("token index already registered in group")

	// health queries
	ErrUndefined           = errors.New("computation has no finite well-formed answer")
	RiskEngineInitRejected = errors.New("account does not meet requirement")

	// position lifecycle
	IllegalPositionState = errors.New("position is in an illegal state")
	PositionInUse        = errors.New("position is referenced by open orders")
	NoPositionFound      = errors.New("no position for token index")

	// config
	InvalidConfig           = errors.New("invalid bank config")
	ErrNegativeInterestRate = errors.New("negative interest rate")

	// mutation flows
	OperationRepayOnly    = errors.New("operation is repay only")
	OperationDepositOnly  = errors.New("operation is deposit only")
	OperationWithdrawOnly = errors.New("operation is withdraw only")
	OperationBorrowOnly   = errors.New("operation is borrow only")
	BankPaused            = errors.New("bank is paused")
	BankReduceOnly        = errors.New("bank is reduce only")

	// liquidation
	IllegalLiquidation     = errors.New("illegal liquidation")
	ErrAccountNotUnhealthy = errors.New("account is not below maintenance requirement")
)
