package timed

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/flemzord/cronsync/internal/job"
)

// ClassPanic is the error class of a job that panicked.
const ClassPanic = "panic"

// ExecutionError is a job failure captured by the wrapper. It is logged,
// tagged on the metric and stored in the execution record; it is never
// returned to the scheduler.
type ExecutionError struct {
	Identity job.Identity
	Class    string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("timed: job %s failed (%s): %v", e.Identity, e.Class, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// PanicError is the error reported for a job that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Classifier lets an error name its own class.
type Classifier interface {
	ErrorClass() string
}

// ErrorClass returns the class used to tag a failure: the Go type name of
// the error with pointer and package stripped. Errors created by fmt.Errorf
// are unwrapped to the error they wrap.
func ErrorClass(err error) string {
	if err == nil {
		return ""
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		return ClassPanic
	}
	var c Classifier
	if errors.As(err, &c) {
		return c.ErrorClass()
	}

	for {
		t := reflect.TypeOf(err)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.PkgPath() == "fmt" {
			if inner := errors.Unwrap(err); inner != nil {
				err = inner
				continue
			}
		}
		if name := t.Name(); name != "" {
			return name
		}
		return t.String()
	}
}
