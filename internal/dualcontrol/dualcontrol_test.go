package dualcontrol

import "testing"

func sampleRoles() AllowedRoles {
	return AllowedRoles{
		"revoke_agent":      {"ops_lead", "security_officer"},
		"kill_switch_pilot": {"security_officer"},
	}
}

func TestRequirePassesWithTwoDistinctOperatorsAndKeys(t *testing.T) {
	actions := []OperatorAction{
		{ActionID: "a1", OperatorID: "op_1", SignerKeyID: "key_1", Role: "ops_lead", Action: "revoke_agent"},
		{ActionID: "a2", OperatorID: "op_2", SignerKeyID: "key_2", Role: "security_officer", Action: "revoke_agent"},
	}
	if err := Require("revoke_agent", actions, sampleRoles()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestRequireFailsWithOnlyOneAction(t *testing.T) {
	actions := []OperatorAction{
		{ActionID: "a1", OperatorID: "op_1", SignerKeyID: "key_1", Role: "ops_lead", Action: "revoke_agent"},
	}
	err := Require("revoke_agent", actions, sampleRoles())
	assertCode(t, err, "DUAL_CONTROL_REQUIRED")
}

func TestRequireRejectsSameOperatorTwice(t *testing.T) {
	actions := []OperatorAction{
		{ActionID: "a1", OperatorID: "op_1", SignerKeyID: "key_1", Role: "ops_lead", Action: "revoke_agent"},
		{ActionID: "a2", OperatorID: "op_1", SignerKeyID: "key_2", Role: "security_officer", Action: "revoke_agent"},
	}
	err := Require("revoke_agent", actions, sampleRoles())
	assertCode(t, err, "DUAL_CONTROL_DISTINCT_OPERATOR_REQUIRED")
}

func TestRequireRejectsSameSignerKeyTwice(t *testing.T) {
	actions := []OperatorAction{
		{ActionID: "a1", OperatorID: "op_1", SignerKeyID: "key_1", Role: "ops_lead", Action: "revoke_agent"},
		{ActionID: "a2", OperatorID: "op_2", SignerKeyID: "key_1", Role: "security_officer", Action: "revoke_agent"},
	}
	err := Require("revoke_agent", actions, sampleRoles())
	assertCode(t, err, "DUAL_CONTROL_DISTINCT_SIGNER_KEY_REQUIRED")
}

func TestRequireRejectsForbiddenRole(t *testing.T) {
	actions := []OperatorAction{
		{ActionID: "a1", OperatorID: "op_1", SignerKeyID: "key_1", Role: "support_agent", Action: "revoke_agent"},
		{ActionID: "a2", OperatorID: "op_2", SignerKeyID: "key_2", Role: "security_officer", Action: "revoke_agent"},
	}
	err := Require("revoke_agent", actions, sampleRoles())
	assertCode(t, err, "OPERATOR_ACTION_ROLE_FORBIDDEN")
}

func TestRequireIgnoresActionsForOtherControls(t *testing.T) {
	actions := []OperatorAction{
		{ActionID: "a1", OperatorID: "op_1", SignerKeyID: "key_1", Role: "security_officer", Action: "kill_switch_pilot"},
		{ActionID: "a2", OperatorID: "op_2", SignerKeyID: "key_2", Role: "security_officer", Action: "revoke_agent"},
	}
	err := Require("revoke_agent", actions, sampleRoles())
	assertCode(t, err, "DUAL_CONTROL_REQUIRED")
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	if verr.Code != code {
		t.Fatalf("expected code %q, got %q", code, verr.Code)
	}
}
