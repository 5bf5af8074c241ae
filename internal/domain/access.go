package domain

import "time"

// AccessEntry is one audit record of a retrieval or answer operation,
// published asynchronously to the access stream.
type AccessEntry struct {
	RequestID  string    `json:"request_id"`
	Operation  string    `json:"operation"`
	Query      string    `json:"query"`
	Mode       string    `json:"mode"`
	FileCount  int       `json:"file_count"`
	ResultIDs  []string  `json:"result_ids,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}
