package consts

const (
	SSEDataPrefix        = "data: "
	SSEEventPrefix       = "event: "
	BoardSnapshotKey     = "board:snapshot"
	DedupeKeyPrefix      = "board:request"
	DefaultEventsChannel = "board-events"
	IdempotencyKeyHeader = "Idempotency-Key"
)
