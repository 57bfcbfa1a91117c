package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kingrea/layers/internal/clock"
	"github.com/kingrea/layers/internal/errs"
	"github.com/kingrea/layers/internal/logbook"
	"github.com/kingrea/layers/internal/logging"
)

const (
	startMarker = "---[MESSAGE START]---"
	endMarker   = "---[MESSAGE END]---"
	instruction = "You have received the message above. Review its contents and respond appropriately."

	// PreviewLimit bounds the body preview kept in the audit trail.
	PreviewLimit = 100

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
	suffixLength    = 12
)

var errUnavailable = errors.New("no session")

// Options configures a Broker.
type Options struct {
	// Logbook receives one record per delivered message. Nil disables the
	// audit trail.
	Logbook *logbook.Logbook
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Broker stamps, delivers and audits envelopes. Delivery is attempted once;
// an unavailable target fails the send and retrying is left to the caller.
type Broker struct {
	transport Transport
	book      *logbook.Logbook
	clock     clock.Clock
	log       *slog.Logger

	mu     sync.Mutex
	lastMS int64
}

// NewBroker builds a Broker over transport.
func NewBroker(transport Transport, opts Options) *Broker {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Broker{
		transport: transport,
		book:      opts.Logbook,
		clock:     opts.Clock,
		log:       logging.For(opts.Logger, "MessageBroker"),
	}
}

// Send stamps the draft, checks the target has a session, types the
// formatted envelope into it and appends an audit record.
func (b *Broker) Send(ctx context.Context, draft Draft) (Message, error) {
	msg := Message{
		ID:               b.GenerateID(),
		Type:             draft.Type,
		From:             draft.From,
		To:               draft.To,
		Timestamp:        b.clock.Now().UTC().Format(timestampLayout),
		Priority:         draft.Priority,
		Content:          draft.Content,
		RequiresResponse: draft.RequiresResponse,
	}
	if msg.Priority == "" {
		msg.Priority = PriorityNormal
	}

	if !b.transport.IsAvailable(ctx, msg.To) {
		return Message{}, errs.Delivery(msg.To, errUnavailable)
	}
	text, err := Format(msg)
	if err != nil {
		return Message{}, err
	}
	if err := b.transport.Send(ctx, msg.To, text); err != nil {
		return Message{}, err
	}
	b.audit(msg)
	b.log.Debug(fmt.Sprintf("Delivered %s from %s to %s", msg.ID, msg.From, msg.To), "type", string(msg.Type))
	return msg, nil
}

// audit appends the record. A write failure never fails the send.
func (b *Broker) audit(msg Message) {
	if b.book == nil {
		return
	}
	if err := b.book.Append(Record(msg)); err != nil {
		b.log.Debug("Audit write failed", "message_id", msg.ID, "error", err)
	}
}

// History returns up to n recent audit records and the total on file.
func (b *Broker) History(n int) ([]logbook.Record, int) {
	return b.book.Tail(n)
}

// Record converts a delivered message to its audit form.
func Record(msg Message) logbook.Record {
	return logbook.Record{
		Timestamp:   msg.Timestamp,
		MessageID:   msg.ID,
		From:        msg.From,
		To:          msg.To,
		Type:        string(msg.Type),
		Subject:     msg.Content.Subject,
		BodyPreview: Preview(msg.Content.Body, PreviewLimit),
	}
}

// Preview truncates s to at most limit runes.
func Preview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// Format renders the wire text: the JSON envelope between the start and end
// markers, then the instruction line.
func Format(msg Message) (string, error) {
	body, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode message %s: %w", msg.ID, err)
	}
	var sb strings.Builder
	sb.WriteString(startMarker)
	sb.WriteByte('\n')
	sb.Write(body)
	sb.WriteByte('\n')
	sb.WriteString(endMarker)
	sb.WriteString("\n\n")
	sb.WriteString(instruction)
	return sb.String(), nil
}

// GenerateID returns "msg_<ms>_<suffix>". The millisecond component never
// decreases across calls on the same Broker; the suffix is random.
func (b *Broker) GenerateID() string {
	ms := b.clock.Now().UnixMilli()
	b.mu.Lock()
	if ms < b.lastMS {
		ms = b.lastMS
	}
	b.lastMS = ms
	b.mu.Unlock()
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLength]
	return fmt.Sprintf("msg_%d_%s", ms, suffix)
}
