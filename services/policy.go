package services

import (
	"fmt"

	"habit-league/models"
)

// CompletionPolicy decides how a fresh completion earns its points.
type CompletionPolicy interface {
	Name() string
	// InitialStatus is the status a new completion is stored with.
	InitialStatus() string
	// RequiresValidation reports whether another member must approve pending completions.
	RequiresValidation() bool
	// AllowsDisputes reports whether approved completions can be objected to.
	AllowsDisputes() bool
}

// SelfAttestPolicy approves on submit and lets the group object afterwards.
type SelfAttestPolicy struct{}

func (SelfAttestPolicy) Name() string             { return models.PolicySelfAttest }
func (SelfAttestPolicy) InitialStatus() string    { return models.StatusApproved }
func (SelfAttestPolicy) RequiresValidation() bool { return false }
func (SelfAttestPolicy) AllowsDisputes() bool     { return true }

// PeerApprovalPolicy holds completions as pending until another member validates them.
type PeerApprovalPolicy struct{}

func (PeerApprovalPolicy) Name() string             { return models.PolicyPeerApproval }
func (PeerApprovalPolicy) InitialStatus() string    { return models.StatusPending }
func (PeerApprovalPolicy) RequiresValidation() bool { return true }
func (PeerApprovalPolicy) AllowsDisputes() bool     { return false }

// PolicyFor resolves the policy stored on a group. An empty name means self attest.
func PolicyFor(name string) (CompletionPolicy, error) {
	switch name {
	case "", models.PolicySelfAttest:
		return SelfAttestPolicy{}, nil
	case models.PolicyPeerApproval:
		return PeerApprovalPolicy{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown completion policy %q", ErrValidation, name)
	}
}
