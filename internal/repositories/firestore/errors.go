package firestore

import "fmt"

// repoError classifies repository failures raised locally, mirroring the
// platform's wrapped gRPC classification for query misses and claim conflicts.
type repoError struct {
	op       string
	notFound bool
	conflict bool
}

func (e *repoError) Error() string {
	switch {
	case e.notFound:
		return fmt.Sprintf("%s: not found", e.op)
	case e.conflict:
		return fmt.Sprintf("%s: conflict", e.op)
	default:
		return e.op
	}
}

func (e *repoError) IsNotFound() bool    { return e != nil && e.notFound }
func (e *repoError) IsConflict() bool    { return e != nil && e.conflict }
func (e *repoError) IsUnavailable() bool { return false }

func newNotFoundError(op string) error {
	return &repoError{op: op, notFound: true}
}

func newConflictError(op string) error {
	return &repoError{op: op, conflict: true}
}
