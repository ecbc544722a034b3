package executor

import (
	"io"

	storageengine "DaemonIndex/storage_engine"
	txn "DaemonIndex/storage_engine/transaction_manager"

	"go.uber.org/zap"
)

type VM struct {
	storageEngine *storageengine.StorageEngine
	out           io.Writer
	logger        *zap.Logger

	currentTxn *txn.Transaction
	autoTxn    bool

	// isolation of transactions begun without an explicit level
	defaultIsolation txn.Isolation
}
