package backup

import "fmt"

// AuthenticationError reports a failed secret lookup: the scope/key pair does
// not exist or the job's principal lacks permission to read it.
type AuthenticationError struct {
	Scope string
	Key   string
	Err   error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("resolve git credentials from secret %s/%s: %v", e.Scope, e.Key, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// NotFoundError reports that the configured space id does not resolve to an
// existing Genie space.
type NotFoundError struct {
	SpaceID string
	Err     error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("genie space %s not found: %v", e.SpaceID, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// TransportError reports a network or authorization failure reaching the
// platform's configuration endpoint.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch genie space configuration: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// GitOperationError reports a failed git stage, commit, or push. A failed
// push leaves the local commit in place; the error makes sure the run is
// still reported as failed.
type GitOperationError struct {
	Op  string
	Err error
}

func (e *GitOperationError) Error() string {
	return fmt.Sprintf("git %s: %v", e.Op, e.Err)
}

func (e *GitOperationError) Unwrap() error { return e.Err }
