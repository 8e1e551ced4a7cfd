package model

import "slices"

// Transaction names.
const (
	TxPostErrorMessage           = "postErrorMessage"
	TxUpdateErrorMessageOwner    = "updateErrorMessageOwner"
	TxUpdateErrorMessageStatus   = "updateErrorMessageStatus"
	TxUpdateErrorMessageSeverity = "updateErrorMessageSeverity"
)

// Transactions lists every transaction name.
var Transactions = []string{
	TxPostErrorMessage,
	TxUpdateErrorMessageOwner,
	TxUpdateErrorMessageStatus,
	TxUpdateErrorMessageSeverity,
}

// IsTransaction reports whether name is a known transaction.
func IsTransaction(name string) bool {
	return slices.Contains(Transactions, name)
}

// TransactionFQI qualifies a transaction name with the namespace.
func TransactionFQI(name string) string {
	return Namespace + "." + name
}
