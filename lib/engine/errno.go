package engine

import (
	"errors"
	"strconv"
)

// --------------------------------------------------------------------------
// Engine Status Codes
// --------------------------------------------------------------------------

// Errno is the status code an engine reports for a failed call.
// The values follow the Linux errno numbering used by the device SDK so that
// codes read from the native library can be used as-is.
type Errno int32

const (
	EOK     Errno = 0  // No error
	EPERM   Errno = 1  // Operation not permitted
	ENOENT  Errno = 2  // No such entry (key, pool or device path)
	EIO     Errno = 5  // Generic I/O failure
	E2BIG   Errno = 7  // Buffer too small for the stored value
	EBADF   Errno = 9  // Unknown or closed handle / cursor
	ENOMEM  Errno = 12 // Out of memory
	EACCES  Errno = 13 // Permission denied on device path
	EEXIST  Errno = 17 // Entry already exists
	EINVAL  Errno = 22 // Invalid argument or configuration (e.g. version mismatch)
	EFBIG   Errno = 27 // Value larger than MaxValueSize
	ENOSPC  Errno = 28 // Device full
	ENODATA Errno = 61 // Cursor exhausted
	ENOTSUP Errno = 95 // Operation not supported by the engine
)

func (e Errno) Error() string {
	return "engine: " + e.String()
}

func (e Errno) String() string {
	switch e {
	case EOK:
		return "ok"
	case EPERM:
		return "operation not permitted"
	case ENOENT:
		return "no such entry"
	case EIO:
		return "i/o error"
	case E2BIG:
		return "buffer too small"
	case EBADF:
		return "bad handle"
	case ENOMEM:
		return "out of memory"
	case EACCES:
		return "permission denied"
	case EEXIST:
		return "entry exists"
	case EINVAL:
		return "invalid argument"
	case EFBIG:
		return "value too large"
	case ENOSPC:
		return "no space left on device"
	case ENODATA:
		return "no more data"
	case ENOTSUP:
		return "operation not supported"
	default:
		return "errno " + strconv.Itoa(int(e))
	}
}

// ErrnoOf extracts the status code from err.
// nil maps to EOK and errors that carry no Errno map to EIO.
func ErrnoOf(err error) Errno {
	if err == nil {
		return EOK
	}
	var errno Errno
	if errors.As(err, &errno) {
		return errno
	}
	return EIO
}
