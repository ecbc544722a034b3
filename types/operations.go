package types

import "encoding/json"

type OperationType byte

const (
	// Index page changes
	OpIndexInsert       OperationType = 1
	OpIndexDeleteMark   OperationType = 2
	OpIndexUpdate       OperationType = 3
	OpIndexPurge        OperationType = 4
	OpIndexCopyAndPurge OperationType = 5
	OpPageAllocate      OperationType = 6
	OpPageInit          OperationType = 7

	// Transaction operations
	OpTxnBegin  OperationType = 10
	OpTxnCommit OperationType = 11
	OpTxnAbort  OperationType = 12

	// Bulk load of a whole container, logged once when it completes
	OpIndexLoad OperationType = 13
)

func (t OperationType) String() string {
	switch t {
	case OpIndexInsert:
		return "INSERT"
	case OpIndexDeleteMark:
		return "DELETE_MARK"
	case OpIndexUpdate:
		return "UPDATE"
	case OpIndexPurge:
		return "PURGE"
	case OpIndexCopyAndPurge:
		return "COPY_AND_PURGE"
	case OpPageAllocate:
		return "ALLOCATE"
	case OpPageInit:
		return "PAGE_INIT"
	case OpTxnBegin:
		return "BEGIN"
	case OpTxnCommit:
		return "COMMIT"
	case OpTxnAbort:
		return "ABORT"
	case OpIndexLoad:
		return "LOAD"
	default:
		return "UNKNOWN"
	}
}

// Operation is one WAL record body.
type Operation struct {
	Type     OperationType `json:"type"`
	TxnID    uint64        `json:"txn_id,omitempty"`
	Internal bool          `json:"internal,omitempty"`

	FileID   uint32 `json:"file_id,omitempty"`
	PageNo   int64  `json:"page_no,omitempty"`
	Slot     int    `json:"slot,omitempty"`
	Count    int    `json:"count,omitempty"`
	Deleted  bool   `json:"deleted,omitempty"`
	RowData  []byte `json:"row_data,omitempty"`
	DestPage int64  `json:"dest_page,omitempty"`
	DestSlot int    `json:"dest_slot,omitempty"`
}

func (op *Operation) Encode() []byte {
	data, _ := json.Marshal(op)
	return data
}

func DecodeOperation(data []byte) (*Operation, error) {
	var op Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, err
	}
	return &op, nil
}
