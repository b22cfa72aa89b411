package wallet

import (
	"fmt"
	"time"
)

// Delegation is one link in a spend-authorization chain (spec §4.11
// Entities): a delegator grants a delegatee a budget-capped, depth-bounded
// right to spend, optionally with an expiry.
type Delegation struct {
	DelegationID   string
	ParentHash     string
	ChildHash      string
	Delegator      string
	Delegatee      string
	BudgetCapCents int64
	Depth          int
	MaxDepth       int
	ExpiresAt      *time.Time
	RevokedAt      *time.Time
}

// Lineage resolves a chain of delegations from a leaf back to its root,
// keyed by ChildHash -> ParentHash.
type Lineage struct {
	byChildHash map[string]Delegation
}

// NewLineage indexes a set of delegations by their child hash.
func NewLineage(delegations []Delegation) Lineage {
	byChildHash := make(map[string]Delegation, len(delegations))
	for _, d := range delegations {
		byChildHash[d.ChildHash] = d
	}
	return Lineage{byChildHash: byChildHash}
}

// Resolve walks the chain starting at leafChildHash back to the root,
// enforcing spec §4.11's guards: depth must not exceed maxDepth, the root
// must not be revoked, and the root must not be expired as of `at`.
func (l Lineage) Resolve(leafChildHash string, at time.Time) (chain []Delegation, err error) {
	current, found := l.byChildHash[leafChildHash]
	if !found {
		return nil, fmt.Errorf("X402_DELEGATION_REVOKED: delegation %q not found", leafChildHash)
	}

	for {
		chain = append(chain, current)
		if current.Depth > current.MaxDepth {
			return nil, fmt.Errorf("X402_WALLET_POLICY_DELEGATION_DEPTH_EXCEEDED: depth %d exceeds max %d", current.Depth, current.MaxDepth)
		}
		if current.ParentHash == "" {
			break
		}
		parent, found := l.byChildHash[current.ParentHash]
		if !found {
			return nil, fmt.Errorf("X402_DELEGATION_REVOKED: parent delegation %q not found", current.ParentHash)
		}
		current = parent
	}

	root := chain[len(chain)-1]
	if root.RevokedAt != nil && !root.RevokedAt.After(at) {
		return nil, fmt.Errorf("X402_DELEGATION_REVOKED: root delegation %q revoked at %s", root.DelegationID, root.RevokedAt)
	}
	if root.ExpiresAt != nil && root.ExpiresAt.Before(at) {
		return nil, fmt.Errorf("X402_DELEGATION_EXPIRED: root delegation %q expired at %s", root.DelegationID, root.ExpiresAt)
	}

	return chain, nil
}

// Root returns the resolved chain's root delegation.
func Root(chain []Delegation) Delegation {
	return chain[len(chain)-1]
}
