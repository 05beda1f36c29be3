package wallet

import "errors"

var (
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrWalletInactive          = errors.New("wallet is inactive")
	ErrAlreadySettled          = errors.New("payin already settled")
	ErrNotSettleable           = errors.New("payin is not in a settleable state")
	ErrSettlementInconsistency = errors.New("settlement inconsistency")
)
