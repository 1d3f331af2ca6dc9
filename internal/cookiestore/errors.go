package cookiestore

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptSessionData matches every *CorruptSessionDataError.
	ErrCorruptSessionData = errors.New("corrupt session data")
	// ErrInvalidKey is returned for platform or user ids that cannot name a file.
	ErrInvalidKey = errors.New("invalid session key")
)

// CorruptSessionDataError reports a session record that exists but cannot be read back.
type CorruptSessionDataError struct {
	Path string
	Err  error
}

func (e *CorruptSessionDataError) Error() string {
	return fmt.Sprintf("corrupt session data in %s: %v", e.Path, e.Err)
}

func (e *CorruptSessionDataError) Unwrap() error { return e.Err }

func (e *CorruptSessionDataError) Is(target error) bool {
	return target == ErrCorruptSessionData
}

// ImportError reports an exported cookie file that could not be folded into the store.
type ImportError struct {
	Path string
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import cookies from %s: %v", e.Path, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }
