package models

import "time"

// QueryRecord is one answered query, persisted for the history endpoint
// and offline inspection of retrieval quality.
type QueryRecord struct {
	ID            string
	QueryText     string
	Answer        string
	BogNumber     string
	ItemNo        string
	MeetingDate   string
	ChunksUsed    int
	RelaxedRetry  bool
	Fallback      bool
	LatencyMS     int
	CreatedAt     time.Time
}

type Feedback struct {
	ID        int
	QueryID   string
	Helpful   bool
	Comment   string
	CreatedAt time.Time
}
