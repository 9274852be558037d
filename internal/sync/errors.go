package sync

import "errors"

// ErrLocked is returned when another run holds the work directory lock
var ErrLocked = errors.New("another sync run holds the work directory lock")

// Condition types reported with a run Error
const (
	// ConditionConfigValid indicates whether the configuration could be used
	ConditionConfigValid = "ConfigValid"

	// ConditionOutputReady indicates whether the output tree is usable
	ConditionOutputReady = "OutputReady"

	// ConditionSyncSuccessful indicates whether the run finished
	ConditionSyncSuccessful = "SyncSuccessful"
)

// Condition reasons for failed runs
const (
	conditionReasonInvalidPolicy  = "InvalidPolicy"
	conditionReasonLockFailed     = "LockFailed"
	conditionReasonOutputFailed   = "OutputFailed"
	conditionReasonRegistryFailed = "RegistryLoadFailed"
	conditionReasonCanceled       = "Canceled"
)

// Error represents a structured error with condition information
type Error struct {
	Err             error
	Message         string
	ConditionType   string
	ConditionReason string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
