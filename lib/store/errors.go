package store

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/fKV/lib/engine"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

// RetCode classifies a failure of a store operation
type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Operation executed successfully.
	RetCOpenError                           // 1: Store could not be opened (path, version or expiry rejected).
	RetCNotOpen                             // 2: Operation on a closed store.
	RetCPoolError                           // 3: Pool creation, lookup or deletion failed.
	RetCNotFound                            // 4: Key (or pool) does not exist.
	RetCCapacity                            // 5: Key or value exceeds a size limit, buffer too small or device full.
	RetCIOError                             // 6: Opaque engine failure, see Errno.
	RetCInvalidArgument                     // 7: Argument rejected before or by the engine.
	RetCUseAfterFree                        // 8: Operation on a released value or ended iterator.
	RetCUnsupportedOperation                // 9: Operation is not supported.
	RetCInvalidHandle                       // 10: Handle used after its owner was closed or deleted.
	RetCAllocation                          // 11: Engine memory could not be allocated.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCOpenError:
		return "OpenError"
	case RetCNotOpen:
		return "NotOpenError"
	case RetCPoolError:
		return "PoolError"
	case RetCNotFound:
		return "NotFoundError"
	case RetCCapacity:
		return "CapacityError"
	case RetCIOError:
		return "IOError"
	case RetCInvalidArgument:
		return "InvalidArgumentError"
	case RetCUseAfterFree:
		return "UseAfterFreeError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperationError"
	case RetCInvalidHandle:
		return "InvalidHandleError"
	case RetCAllocation:
		return "AllocationError"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type of every store operation. It wraps a return code
// (of type RetCode), the engine status code that caused it (if any) and an
// error message.
//
// Errors match by code, so errors.Is(err, store.ErrNotFound) holds for every
// NotFoundError regardless of operation and message.
type Error struct {
	Op    string       // Operation that failed (e.g. "get", "open")
	Code  RetCode      // The return code
	Errno engine.Errno // Engine status code, EOK if the failure was detected by the client layer
	Msg   string       // The error message
	Err   error        // Underlying error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("fkv %s: %s", e.Op, e.Code)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Errno != engine.EOK {
		msg += fmt.Sprintf(" (errno %d: %s)", int32(e.Errno), e.Errno)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(op string, code RetCode, msg string) *Error {
	return &Error{
		Op:   op,
		Code: code,
		Msg:  msg,
	}
}

// Sentinels for errors.Is matching.
var (
	ErrOpen            = &Error{Code: RetCOpenError}
	ErrNotOpen         = &Error{Code: RetCNotOpen}
	ErrPool            = &Error{Code: RetCPoolError}
	ErrNotFound        = &Error{Code: RetCNotFound}
	ErrCapacity        = &Error{Code: RetCCapacity}
	ErrIO              = &Error{Code: RetCIOError}
	ErrInvalidArgument = &Error{Code: RetCInvalidArgument}
	ErrUseAfterFree    = &Error{Code: RetCUseAfterFree}
	ErrUnsupported     = &Error{Code: RetCUnsupportedOperation}
	ErrInvalidHandle   = &Error{Code: RetCInvalidHandle}
	ErrAllocation      = &Error{Code: RetCAllocation}
)

// CodeOf returns the return code of err, RetCSuccess for nil and RetCIOError
// for errors that did not originate in this package.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCIOError
}

// --------------------------------------------------------------------------
// Engine Status Translation
// --------------------------------------------------------------------------

// opClass selects the default return code of an operation family.
type opClass uint8

const (
	classIO    opClass = iota // point and batch operations, iteration
	classOpen                 // store open
	classPool                 // pool management
	classQuery                // store and key metadata queries
)

// translate converts an engine failure into an *Error.
//
// Status codes with a precise meaning map to their own class (absence,
// capacity, stale handles, memory). Everything else falls back to the default
// class of the operation, with the status code attached.
func translate(op string, class opClass, err error) error {
	if err == nil {
		return nil
	}

	errno := engine.ErrnoOf(err)
	code := defaultCode(class)

	switch errno {
	case engine.ENOENT:
		if class == classIO || class == classQuery {
			code = RetCNotFound
		}
	case engine.E2BIG, engine.ENOSPC, engine.EFBIG:
		if class != classOpen {
			code = RetCCapacity
		}
	case engine.EBADF:
		if class != classOpen {
			code = RetCInvalidHandle
		}
	case engine.ENOMEM:
		code = RetCAllocation
	case engine.EINVAL:
		if class == classIO {
			code = RetCInvalidArgument
		}
	case engine.ENOTSUP:
		code = RetCUnsupportedOperation
	}

	return &Error{
		Op:    op,
		Code:  code,
		Errno: errno,
		Msg:   "engine call failed",
		Err:   err,
	}
}

func defaultCode(class opClass) RetCode {
	switch class {
	case classOpen:
		return RetCOpenError
	case classPool:
		return RetCPoolError
	default:
		return RetCIOError
	}
}
