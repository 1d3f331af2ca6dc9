package browser

import "fmt"

// NavigationError is returned when a page fails to load.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// AutomationError wraps a failed browser operation other than navigation.
type AutomationError struct {
	Op  string
	Err error
}

func (e *AutomationError) Error() string {
	return fmt.Sprintf("browser %s failed: %v", e.Op, e.Err)
}

func (e *AutomationError) Unwrap() error { return e.Err }
