package db

import (
	"encoding/json"
	"time"
)

// ErrorRecord is a row in the error_records table.
type ErrorRecord struct {
	ID      string          `json:"id"`
	FQN     string          `json:"fqn"`
	Message string          `json:"message"`
	PeerID  string          `json:"peerId"`
	Record  json.RawMessage `json:"record"`
	Created time.Time       `json:"created"`
}

// InsertErrorRecordParams holds parameters for InsertErrorRecord.
type InsertErrorRecordParams struct {
	FQN     string
	Message string
	PeerID  string
	Record  json.RawMessage
}

// ListErrorRecordsParams holds parameters for ListErrorRecords.
type ListErrorRecordsParams struct {
	FQN   string
	Page  int
	Limit int
}
