// Package audit implements the append-only operator-action trail that backs
// dual-control approvals and emergency controls: every sensitive action
// (revoke, kill-switch, override) is recorded with a monotonically
// increasing sequence so it can be reconstructed in exact order, independent
// of any external event stream.
package audit

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Event identifies the lifecycle milestone captured by an audit record.
type Event string

const (
	EventOperatorAction    Event = "operator_action"
	EventDualControlPassed Event = "dual_control_passed"
	EventDualControlFailed Event = "dual_control_failed"
	EventPromotionOverride Event = "promotion_override"
	EventKillSwitchToggled Event = "kill_switch_toggled"
	EventAgentRevoked      Event = "agent_revoked"
)

// Record is an immutable audit log entry, keyed by tenant and ordered by
// Sequence within that tenant.
type Record struct {
	Sequence  uint64    `json:"sequence"`
	TenantID  string    `json:"tenantId"`
	Timestamp time.Time `json:"timestamp"`
	Event     Event     `json:"event"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Details   string    `json:"details"`
}

// ErrNotFound is returned when a query matches no records.
var ErrNotFound = errors.New("audit: no matching records")

// Trail is an append-only, in-process audit trail. It is safe for
// concurrent use. Production deployments back Trail with the store package's
// append-only index; this type holds the ordering and query semantics that
// sit in front of it.
type Trail struct {
	mu      sync.Mutex
	bySeq   []Record
	nextSeq map[string]uint64
	nowFunc func() time.Time
	sink    io.Writer
}

// New returns an empty Trail. now is called to stamp each appended record;
// callers inject it so tests can supply a fixed clock.
func New(now func() time.Time) *Trail {
	if now == nil {
		now = time.Now
	}
	return &Trail{nextSeq: map[string]uint64{}, nowFunc: now}
}

// NewWithRotatingSink returns a Trail that, in addition to holding records
// in memory, appends each record as an NDJSON line to a size-rotated log
// file at path (100MB per file, 7 backups, 28 days, gzip'd), for operators
// who tail/ship the audit trail off-box independently of the in-process
// query methods.
func NewWithRotatingSink(now func() time.Time, path string) *Trail {
	t := New(now)
	t.sink = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     28,
		Compress:   true,
	}
	return t
}

// Append records a new audit entry for tenantID and returns the sealed
// Record including its assigned sequence and timestamp. details, when
// non-nil, is JSON-marshaled into the record's Details field.
func (t *Trail) Append(tenantID string, event Event, action, actor string, details any) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextSeq[tenantID]++
	record := Record{
		Sequence:  t.nextSeq[tenantID],
		TenantID:  tenantID,
		Timestamp: t.nowFunc(),
		Event:     event,
		Action:    action,
		Actor:     actor,
	}

	if details != nil {
		switch v := details.(type) {
		case string:
			record.Details = v
		default:
			payload, err := json.Marshal(v)
			if err != nil {
				return Record{}, err
			}
			record.Details = string(payload)
		}
	}

	t.bySeq = append(t.bySeq, record)

	if t.sink != nil {
		line, err := json.Marshal(record)
		if err != nil {
			return Record{}, err
		}
		if _, err := t.sink.Write(append(line, '\n')); err != nil {
			return Record{}, err
		}
	}

	return record, nil
}

// ForTenant returns every record for tenantID in append order.
func (t *Trail) ForTenant(tenantID string) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Record
	for _, r := range t.bySeq {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out
}

// ForAction returns every record for tenantID matching action, in append
// order. Used to reconstruct the set of operator actions submitted toward a
// dual-control decision (spec §4.12).
func (t *Trail) ForAction(tenantID, action string) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Record
	for _, r := range t.bySeq {
		if r.TenantID == tenantID && r.Action == action {
			out = append(out, r)
		}
	}
	return out
}

// Latest returns the most recently appended record for tenantID, or
// ErrNotFound if none exist.
func (t *Trail) Latest(tenantID string) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.bySeq) - 1; i >= 0; i-- {
		if t.bySeq[i].TenantID == tenantID {
			return t.bySeq[i], nil
		}
	}
	return Record{}, ErrNotFound
}
