// Package dualcontrol implements the two-operator approval requirement of
// spec §4.12: sensitive emergency controls (revoke, kill-switch) require
// two signed operator-action messages from distinct operators, distinct
// signer keys, and roles drawn from an allowed matrix.
package dualcontrol

import "fmt"

// OperatorAction is one signed operator-action message submitted toward a
// sensitive control.
type OperatorAction struct {
	ActionID    string
	OperatorID  string
	SignerKeyID string
	Role        string
	Action      string
}

// AllowedRoles maps each sensitive action to the set of operator roles
// permitted to approve it.
type AllowedRoles map[string][]string

func (roles AllowedRoles) allows(action, role string) bool {
	for _, r := range roles[action] {
		if r == role {
			return true
		}
	}
	return false
}

// ValidationError is a dual-control rule violation, carrying the stable
// error code from spec §4.12.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Require implements spec §4.12: validates that exactly the actions
// approving `action` are present, from distinct operators, distinct
// signer keys, and each holding an allowed role. It is fail-closed: fewer
// than two qualifying actions, or any violation, returns a ValidationError
// and the sensitive control must not proceed.
func Require(action string, actions []OperatorAction, roles AllowedRoles) error {
	var matching []OperatorAction
	for _, a := range actions {
		if a.Action != action {
			continue
		}
		if !roles.allows(action, a.Role) {
			return &ValidationError{Code: "OPERATOR_ACTION_ROLE_FORBIDDEN", Message: fmt.Sprintf("role %q is not permitted to approve %q", a.Role, action)}
		}
		matching = append(matching, a)
	}

	if len(matching) < 2 {
		return &ValidationError{Code: "DUAL_CONTROL_REQUIRED", Message: fmt.Sprintf("action %q requires two signed operator actions, got %d", action, len(matching))}
	}

	operatorsSeen := map[string]bool{}
	signersSeen := map[string]bool{}
	for _, a := range matching {
		if operatorsSeen[a.OperatorID] {
			return &ValidationError{Code: "DUAL_CONTROL_DISTINCT_OPERATOR_REQUIRED", Message: "the same operator approved twice"}
		}
		operatorsSeen[a.OperatorID] = true

		if signersSeen[a.SignerKeyID] {
			return &ValidationError{Code: "DUAL_CONTROL_DISTINCT_SIGNER_KEY_REQUIRED", Message: "the same signer key was used twice"}
		}
		signersSeen[a.SignerKeyID] = true
	}

	return nil
}
