package txn

import (
	"go.uber.org/zap"
)

// enqueue hands post-commit work to the pool. When the queue is full the
// work runs on the committing goroutine, which holds no latches by then.
func (tm *TxnManager) enqueue(w PostCommitWork) {
	tm.workWG.Add(1)

	tm.mu.RLock()
	queued := false
	if !tm.closed {
		select {
		case tm.work <- w:
			queued = true
		default:
		}
	}
	tm.mu.RUnlock()

	if !queued {
		tm.perform(w)
	}
}

func (tm *TxnManager) runWorker() {
	defer tm.workerWG.Done()
	for w := range tm.work {
		tm.perform(w)
	}
}

func (tm *TxnManager) perform(w PostCommitWork) {
	defer tm.workWG.Done()
	if err := w.Run(); err != nil {
		tm.logger.Warn("post-commit work failed", zap.String("work", w.Name), zap.Error(err))
		return
	}
	tm.logger.Debug("post-commit work done", zap.String("work", w.Name))
}
