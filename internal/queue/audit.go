package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/event-booking/internal/logging"
)

// AuditHandler logs each event as structured JSON and appends one line per
// event to an audit file.
type AuditHandler struct {
	path string
	log  *logging.Logger
	now  func() time.Time

	mu sync.Mutex
}

func NewAuditHandler(path string, log *logging.Logger) *AuditHandler {
	return &AuditHandler{path: path, log: log, now: time.Now}
}

type auditLine struct {
	ReceivedAt time.Time       `json:"received_at"`
	RoutingKey string          `json:"routing_key"`
	Event      json.RawMessage `json:"event"`
}

func (h *AuditHandler) Handle(ctx context.Context, routingKey string, body []byte) error {
	fields, err := summarize(routingKey, body)
	if err != nil {
		return err
	}
	h.log.Info(h.log.WithFields(ctx, fields), "event received")

	line, err := json.Marshal(auditLine{ReceivedAt: h.now().UTC(), RoutingKey: routingKey, Event: body})
	if err != nil {
		return fmt.Errorf("marshal audit line: %w", err)
	}
	return h.append(append(line, '\n'))
}

// summarize validates the payload for its routing key and picks the fields
// worth indexing in the log.
func summarize(routingKey string, body []byte) (map[string]any, error) {
	switch {
	case strings.HasPrefix(routingKey, "booking."):
		var ev BookingEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal booking event: %w", err)
		}
		if ev.BookingID == 0 {
			return nil, fmt.Errorf("booking event without booking_id")
		}
		return map[string]any{
			"booking_id": ev.BookingID,
			"user_id":    ev.UserID,
			"status":     ev.Status,
			"total":      ev.TotalPrice.StringFixed(2),
			"remaining":  ev.Remaining.StringFixed(2),
		}, nil
	case strings.HasPrefix(routingKey, "user."):
		var ev UserEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal user event: %w", err)
		}
		return map[string]any{"user_id": ev.UserID, "email": ev.Email}, nil
	default:
		return nil, fmt.Errorf("unknown routing key %q", routingKey)
	}
}

func (h *AuditHandler) append(line []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return fmt.Errorf("mkdir audit dir: %w", err)
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}
