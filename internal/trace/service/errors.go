package service

import (
	"errors"
	"fmt"
)

// Sentinel errors of the lifecycle engine. State-conflict and not-found
// errors are surfaced verbatim to the caller with enough detail to support
// a corrective retry; none are retried internally.
var (
	ErrCodeNotFound      = errors.New("code not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrSessionNotFound   = errors.New("shipment session not found")
	ErrSessionClosed     = errors.New("shipment session is closed")
	ErrSessionNotClosed  = errors.New("shipment session is not closed yet")
	ErrSessionExpired    = errors.New("shipment session has expired")
	ErrDuplicateBatch    = errors.New("a batch already exists for this order")
	ErrInvalidOrderState = errors.New("order is not in an approvable state")
	ErrNotSealed         = errors.New("case is not sealed")
	ErrMasterSealed      = errors.New("case is already sealed")
	ErrAlreadyShipped    = errors.New("code is already shipped")
	ErrAlreadyClaimed    = errors.New("code is claimed by another open session")
)

// TransitionError reports an attempt to apply a transition not present in
// the table for the code's current status. It carries both states so the
// caller can diagnose and retry correctly.
type TransitionError struct {
	Code      string
	CodeType  string
	Current   string
	Attempted string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition for %s code %s: %s not allowed from status %s",
		e.CodeType, e.Code, e.Attempted, e.Current)
}

// LinkFailure names one unique code that failed link validation and why.
type LinkFailure struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// LinkValidationError rejects a link call as a whole: nothing was linked,
// and the caller gets the specific failing codes to retry with a
// corrected set.
type LinkValidationError struct {
	Failures []LinkFailure
}

func (e *LinkValidationError) Error() string {
	return fmt.Sprintf("link validation failed for %d code(s)", len(e.Failures))
}

// CaseCapacityError rejects a link set that would overfill the case.
type CaseCapacityError struct {
	Expected  int
	Linked    int
	Attempted int
}

func (e *CaseCapacityError) Error() string {
	return fmt.Sprintf("case capacity exceeded: %d linked + %d attempted > %d expected",
		e.Linked, e.Attempted, e.Expected)
}

// QuantityMismatchError rejects a session close whose scanned tally does
// not meet the expected quantity and no discrepancy override was given.
type QuantityMismatchError struct {
	Expected int
	Scanned  int
}

func (e *QuantityMismatchError) Error() string {
	return fmt.Sprintf("scanned quantity %d does not match expected %d (set approve_discrepancy to force-close)",
		e.Scanned, e.Expected)
}
