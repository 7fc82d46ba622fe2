package domain

import "errors"

// Validation errors: the request was malformed, nothing was applied.
var (
	// ErrInvalidReward is returned when a job is created with a zero reward
	ErrInvalidReward = errors.New("reward must be greater than 0")

	// ErrEmptyInput is returned when a job is created without encrypted input
	ErrEmptyInput = errors.New("empty inputs")

	// ErrInsufficientStake is returned when a registration stake is below the minimum
	ErrInsufficientStake = errors.New("insufficient stake")

	// ErrUnknownComputationKind is returned for a kind outside the supported set
	ErrUnknownComputationKind = errors.New("unknown computation kind")

	// ErrInvalidArgument covers other malformed parameters
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAmountTooLarge is returned for a reward or stake of MaxAmountBits bits or more
	ErrAmountTooLarge = errors.New("amount too large")
)

// State-conflict errors: valid in isolation but lost a race or came in the wrong phase.
var (
	// ErrJobAlreadyClaimed is returned when a claim finds the job no longer Pending
	ErrJobAlreadyClaimed = errors.New("job already claimed")

	// ErrInvalidState is returned when an operation requires a different status
	ErrInvalidState = errors.New("invalid job state")

	// ErrCannotCancel is returned when cancelling a job that is not Pending
	ErrCannotCancel = errors.New("cannot cancel")

	// ErrAlreadyRegistered is returned when an active worker registers again
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrWorkerHasActiveJobs is returned when deregistering while holding an Assigned job
	ErrWorkerHasActiveJobs = errors.New("worker holds assigned jobs")
)

// Authorization errors: never retried automatically.
var (
	ErrNotClient            = errors.New("not the job client")
	ErrNotOwner             = errors.New("not the platform owner")
	ErrNotAssignedToCaller  = errors.New("not assigned to you")
	ErrNotAnActiveWorker    = errors.New("not an active worker")
	ErrNotRegistered        = errors.New("not registered")
	ErrMissingCallerAddress = errors.New("caller address is required")
)

// Lookup errors.
var (
	ErrJobNotFound    = errors.New("job not found")
	ErrWorkerNotFound = errors.New("worker not found")
)

// ErrComputationFailed is returned by a computation capability that could not produce a result
var ErrComputationFailed = errors.New("computation failed")

// ErrLedgerParamsMissing is returned before any process has recorded the ledger parameters
var ErrLedgerParamsMissing = errors.New("ledger parameters not initialized")

// ErrLedgerParamsMismatch is returned when a process is configured differently from the stored parameters
var ErrLedgerParamsMismatch = errors.New("ledger parameters differ from stored values")

// ErrAmountOverflow is returned when arithmetic would leave the Amount range
var ErrAmountOverflow = errors.New("amount overflow")

// ErrInsufficientFunds signals a pool would go negative. Seeing it means a ledger bug.
var ErrInsufficientFunds = errors.New("insufficient funds in account")

// ErrorClass groups errors by how callers should react to them
type ErrorClass string

const (
	ClassValidation    ErrorClass = "validation"
	ClassConflict      ErrorClass = "conflict"
	ClassAuthorization ErrorClass = "authorization"
	ClassNotFound      ErrorClass = "not_found"
	ClassExternal      ErrorClass = "external"
	ClassInternal      ErrorClass = "internal"
)

var errorClasses = []struct {
	err   error
	class ErrorClass
}{
	{ErrInvalidReward, ClassValidation},
	{ErrEmptyInput, ClassValidation},
	{ErrInsufficientStake, ClassValidation},
	{ErrUnknownComputationKind, ClassValidation},
	{ErrInvalidArgument, ClassValidation},
	{ErrAmountTooLarge, ClassValidation},
	{ErrJobAlreadyClaimed, ClassConflict},
	{ErrInvalidState, ClassConflict},
	{ErrCannotCancel, ClassConflict},
	{ErrAlreadyRegistered, ClassConflict},
	{ErrWorkerHasActiveJobs, ClassConflict},
	{ErrNotClient, ClassAuthorization},
	{ErrNotOwner, ClassAuthorization},
	{ErrNotAssignedToCaller, ClassAuthorization},
	{ErrNotAnActiveWorker, ClassAuthorization},
	{ErrNotRegistered, ClassAuthorization},
	{ErrMissingCallerAddress, ClassAuthorization},
	{ErrJobNotFound, ClassNotFound},
	{ErrWorkerNotFound, ClassNotFound},
	{ErrComputationFailed, ClassExternal},
}

// ClassOf returns the class of a (possibly wrapped) ledger error
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}
	for _, ec := range errorClasses {
		if errors.Is(err, ec.err) {
			return ec.class
		}
	}
	return ClassInternal
}

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
