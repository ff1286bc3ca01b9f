package credential

import "fmt"

// AuthError reports a failed interactive re-acquisition. It is fatal to a run.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorize (%s): %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RefreshError reports a failed token refresh. The Manager recovers from it
// by falling back to re-acquisition.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh token: %v", e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }
