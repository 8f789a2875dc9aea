package event_bus

// LedgerEntryWritten is published after every successful ledger mutation (insert, status
// change, field update). The payload is the row as stored.
const LedgerEntryWritten EventType = "ledger.entry.written"

// LedgerBatchDeleted is published after a batch is removed. The payload carries the batch
// code and a "deleted" marker instead of a row.
const LedgerBatchDeleted EventType = "ledger.batch.deleted"

// RecordConfirmed is published when a staged spend report, hold or deposit is approved.
const RecordConfirmed EventType = "confirmation.record.confirmed"

// ReplicationRecord is a flat key/value rendering of a stored record.
type ReplicationRecord struct {
	// Kind names the record family for downstream routing, e.g. "budget".
	Kind   string
	Record map[string]any
}
