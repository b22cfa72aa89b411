package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAppendAssignsMonotonicSequencePerTenant(t *testing.T) {
	trail := New(fixedClock(time.Unix(1780000000, 0)))

	r1, err := trail.Append("tenant_1", EventOperatorAction, "revoke_agent", "op_1", nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	r2, err := trail.Append("tenant_1", EventOperatorAction, "revoke_agent", "op_2", nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	r3, err := trail.Append("tenant_2", EventOperatorAction, "revoke_agent", "op_1", nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if r1.Sequence != 1 || r2.Sequence != 2 {
		t.Fatalf("expected sequences 1,2 within tenant_1, got %d,%d", r1.Sequence, r2.Sequence)
	}
	if r3.Sequence != 1 {
		t.Fatalf("expected sequence 1 for a fresh tenant, got %d", r3.Sequence)
	}
}

func TestAppendMarshalsDetails(t *testing.T) {
	trail := New(fixedClock(time.Unix(1780000000, 0)))
	record, err := trail.Append("tenant_1", EventDualControlPassed, "kill_switch_pilot", "op_1", map[string]string{"role": "security_officer"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if record.Details != `{"role":"security_officer"}` {
		t.Fatalf("unexpected details: %s", record.Details)
	}
}

func TestForTenantFiltersAndPreservesOrder(t *testing.T) {
	trail := New(fixedClock(time.Unix(1780000000, 0)))
	trail.Append("tenant_1", EventOperatorAction, "revoke_agent", "op_1", nil)
	trail.Append("tenant_2", EventOperatorAction, "revoke_agent", "op_1", nil)
	trail.Append("tenant_1", EventDualControlPassed, "revoke_agent", "op_2", nil)

	records := trail.ForTenant("tenant_1")
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Sequence != 1 || records[1].Sequence != 2 {
		t.Fatalf("expected records in append order, got %+v", records)
	}
}

func TestForActionFiltersByActionName(t *testing.T) {
	trail := New(fixedClock(time.Unix(1780000000, 0)))
	trail.Append("tenant_1", EventOperatorAction, "revoke_agent", "op_1", nil)
	trail.Append("tenant_1", EventOperatorAction, "kill_switch_pilot", "op_1", nil)

	records := trail.ForAction("tenant_1", "revoke_agent")
	if len(records) != 1 {
		t.Fatalf("expected 1 matching record, got %d", len(records))
	}
}

func TestLatestReturnsErrNotFoundForUnknownTenant(t *testing.T) {
	trail := New(fixedClock(time.Unix(1780000000, 0)))
	_, err := trail.Latest("tenant_missing")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestReturnsMostRecentRecord(t *testing.T) {
	trail := New(fixedClock(time.Unix(1780000000, 0)))
	trail.Append("tenant_1", EventOperatorAction, "revoke_agent", "op_1", nil)
	second, _ := trail.Append("tenant_1", EventOperatorAction, "revoke_agent", "op_2", nil)

	latest, err := trail.Latest("tenant_1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Sequence != second.Sequence {
		t.Fatalf("expected latest to match most recent append, got %+v", latest)
	}
}

func TestNewWithRotatingSinkWritesNDJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	trail := NewWithRotatingSink(fixedClock(time.Unix(1780000000, 0)), path)

	if _, err := trail.Append("tenant_1", EventAgentRevoked, "revoke_agent", "op_1", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := trail.Append("tenant_1", EventAgentRevoked, "revoke_agent", "op_2", nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	defer f.Close()

	var lines []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		lines = append(lines, r)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 sink lines, got %d", len(lines))
	}
	if lines[0].Sequence != 1 || lines[1].Sequence != 2 {
		t.Fatalf("expected sequences 1,2 in sink order, got %d,%d", lines[0].Sequence, lines[1].Sequence)
	}
}
