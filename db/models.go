package db

import "time"

// Room is a managed chat channel plus its meeting link.
type Room struct {
	ID          int64
	Creator     string
	ChannelName string
	MeetingLink string
	CreatedAt   time.Time
}

// QueuedMessage is one pending outbound line.
type QueuedMessage struct {
	ID          int64
	Destination string
	Body        string
	EnqueuedAt  time.Time
}

// Question is one entry of a channel's question log.
type Question struct {
	Channel string
	Seq     int
	Creator string
	Body    string
	AskedAt time.Time
}

// OccupancySample is one processed membership reply.
type OccupancySample struct {
	ID          int64
	Channel     string
	MemberCount int
	MemberList  string
	SampledAt   time.Time
}

// AuditEntry is one row of the audit cursor: the count a channel had at the last audit cycle and
// the sample that count came from.
type AuditEntry struct {
	Channel        string
	LastKnownCount int
	SampleID       int64
	AuditedAt      time.Time
}
