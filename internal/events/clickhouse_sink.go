package events

import (
	"context"
	"encoding/json"

	"stepup-auth/internal/bucketing"
	"stepup-auth/internal/client"
)

const insertEventQuery = `
    INSERT INTO security_events (
        event_bucket, event_date, event_id, event_type, session_id,
        subject_id, channel, masked_destination, success, reason,
        metadata, occurred_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// ClickHouseSink writes events into the security_events table, partitioned
// by event bucket and date for retention-friendly pruning.
type ClickHouseSink struct {
	conn    *client.ClickHouseClient
	buckets *bucketing.Manager
}

func NewClickHouseSink(conn *client.ClickHouseClient, buckets *bucketing.Manager) *ClickHouseSink {
	return &ClickHouseSink{
		conn:    conn,
		buckets: buckets,
	}
}

func (s *ClickHouseSink) Write(ctx context.Context, event SecurityEvent) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		metadata = []byte("{}")
	}

	return s.conn.Exec(ctx, insertEventQuery,
		s.buckets.EventBucket(event.ID),
		s.buckets.DateBucket(event.At),
		event.ID,
		string(event.Type),
		event.SessionID,
		event.SubjectID,
		event.Channel,
		event.MaskedDestination,
		event.Success,
		event.Reason,
		string(metadata),
		event.At,
	)
}
