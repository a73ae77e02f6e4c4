package chainlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// JetStream is a Log backed by a NATS JetStream stream. The stream's own
// message sequence is the log's sequence number, so ordering survives
// reconnects and redeliveries.
type JetStream struct {
	js      nats.JetStreamContext
	stream  string
	subject string
}

// NewJetStream binds a Log to the named stream, creating it if it does not
// exist. All entries are published on a single subject so the stream
// sequence matches the subject sequence.
func NewJetStream(nc *nats.Conn, stream string) (*JetStream, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	subject := stream + ".records"

	if _, err := js.StreamInfo(stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return nil, fmt.Errorf("stream info %s: %w", stream, err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     stream,
			Subjects: []string{subject},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", stream, err)
		}
	}

	return &JetStream{js: js, stream: stream, subject: subject}, nil
}

// Append publishes the payload and returns the broker-assigned entry.
func (l *JetStream) Append(ctx context.Context, payload []byte) (Entry, error) {
	ack, err := l.js.Publish(l.subject, payload, nats.Context(ctx))
	if err != nil {
		return Entry{}, fmt.Errorf("append to %s: %w", l.stream, err)
	}

	entry := Entry{
		Sequence:  ack.Sequence,
		Timestamp: time.Now().UTC(),
		Payload:   append([]byte(nil), payload...),
	}

	// Prefer the broker's stored timestamp when we can fetch it.
	if msg, err := l.js.GetMsg(l.stream, ack.Sequence); err == nil {
		entry.Timestamp = msg.Time.UTC()
	}

	return entry, nil
}

// ReadAll walks the stream from its first to last sequence. Sequences with
// no message (expired or deleted) are skipped.
func (l *JetStream) ReadAll(ctx context.Context) ([]Entry, error) {
	info, err := l.js.StreamInfo(l.stream)
	if err != nil {
		return nil, fmt.Errorf("stream info %s: %w", l.stream, err)
	}
	if info.State.Msgs == 0 {
		return nil, nil
	}

	entries := make([]Entry, 0, info.State.Msgs)
	for seq := info.State.FirstSeq; seq <= info.State.LastSeq; seq++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := l.js.GetMsg(l.stream, seq)
		if err != nil {
			if errors.Is(err, nats.ErrMsgNotFound) {
				continue
			}
			return nil, fmt.Errorf("read %s seq %d: %w", l.stream, seq, err)
		}
		entries = append(entries, Entry{
			Sequence:  msg.Sequence,
			Timestamp: msg.Time.UTC(),
			Payload:   msg.Data,
		})
	}
	return entries, nil
}
