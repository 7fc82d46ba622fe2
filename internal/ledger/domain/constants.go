package domain

import (
	"fmt"
	"strings"
)

// JobStatus is the lifecycle phase of a job
type JobStatus string

// Job status constants
const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusAssigned  JobStatus = "ASSIGNED"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusVerified  JobStatus = "VERIFIED"
	JobStatusDisputed  JobStatus = "DISPUTED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// AllJobStatuses lists every status in lifecycle order
var AllJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusAssigned,
	JobStatusCompleted,
	JobStatusVerified,
	JobStatusDisputed,
	JobStatusCancelled,
}

// IsTerminal reports whether no further transition is possible
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusVerified || s == JobStatusCancelled
}

// HoldsEscrow reports whether the job's payout is still held by the ledger
func (s JobStatus) HoldsEscrow() bool {
	switch s {
	case JobStatusPending, JobStatusAssigned, JobStatusCompleted, JobStatusDisputed:
		return true
	}
	return false
}

// ParseJobStatus accepts a status name in any case
func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllJobStatuses {
		if status == known {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: unknown job status %q", ErrInvalidArgument, s)
}

// ComputationKind selects the homomorphic operation a job requests
type ComputationKind string

const (
	KindSum              ComputationKind = "SUM"
	KindAverage          ComputationKind = "AVERAGE"
	KindMax              ComputationKind = "MAX"
	KindMin              ComputationKind = "MIN"
	KindLinearRegression ComputationKind = "LINEAR_REGRESSION"
	KindDecisionTree     ComputationKind = "DECISION_TREE"
)

// AllComputationKinds lists the supported kinds
var AllComputationKinds = []ComputationKind{
	KindSum,
	KindAverage,
	KindMax,
	KindMin,
	KindLinearRegression,
	KindDecisionTree,
}

var kindDisplayNames = map[ComputationKind]string{
	KindSum:              "Encrypted Sum",
	KindAverage:          "Encrypted Average",
	KindMax:              "Encrypted Maximum",
	KindMin:              "Encrypted Minimum",
	KindLinearRegression: "Linear Regression",
	KindDecisionTree:     "Decision Tree Inference",
}

// DisplayName returns the human readable name of the kind
func (k ComputationKind) DisplayName() string {
	if name, ok := kindDisplayNames[k]; ok {
		return name
	}
	return string(k)
}

// Valid reports whether k is one of the supported kinds
func (k ComputationKind) Valid() bool {
	_, ok := kindDisplayNames[k]
	return ok
}

// ParseComputationKind accepts a kind name in any case
func ParseComputationKind(s string) (ComputationKind, error) {
	kind := ComputationKind(strings.ToUpper(strings.TrimSpace(s)))
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownComputationKind, s)
	}
	return kind, nil
}

// Internal pool accounts. Addresses never start with '@'.
const (
	AccountEscrow   = "@escrow"
	AccountStake    = "@stake"
	AccountPlatform = "@platform"
)

const (
	// InitialReputation is assigned on every (re)registration
	InitialReputation = 100

	// DefaultReputationIncrement is added for each verified job
	DefaultReputationIncrement = 1

	// DefaultFeeBasisPoints is the platform fee (2%)
	DefaultFeeBasisPoints = 200

	// BasisPointsDenominator expresses fee rates in 1/10000
	BasisPointsDenominator = 10000
)
