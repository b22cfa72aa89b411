package codes

import "testing"

func TestNewLooksUpKnownStatus(t *testing.T) {
	err := New(X402AgentSuspended, "agent is suspended", nil)
	if err.HTTPStatus != 410 {
		t.Fatalf("expected 410, got %d", err.HTTPStatus)
	}
}

func TestNewDefaultsUnknownCodesTo400(t *testing.T) {
	err := New("SOME_UNMAPPED_CODE", "", nil)
	if err.HTTPStatus != 400 {
		t.Fatalf("expected default 400, got %d", err.HTTPStatus)
	}
}

func TestErrorIncludesCodeAndMessage(t *testing.T) {
	err := New(GLBatchImbalanced, "totals must net to zero", nil)
	if err.Error() != "GL_BATCH_IMBALANCED: totals must net to zero" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestReserveUnavailableMapsTo503(t *testing.T) {
	err := New(X402ReserveUnavailable, "", nil)
	if err.HTTPStatus != 503 {
		t.Fatalf("expected 503, got %d", err.HTTPStatus)
	}
}

func TestAgentThrottledMapsTo429(t *testing.T) {
	err := New(X402AgentThrottled, "", nil)
	if err.HTTPStatus != 429 {
		t.Fatalf("expected 429, got %d", err.HTTPStatus)
	}
}
