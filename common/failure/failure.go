// Package failure classifies test failures as product defects (ProdError)
// or lab and tooling defects (InfraError). Both stay ordinary test runner
// failures; the classification only changes the reported message.
package failure

import (
	"errors"
	"fmt"

	"github.com/onsi/ginkgo"
	"github.com/onsi/gomega"
)

// ProdError reports that the system under test misbehaved or did not reach
// an expected state in time.
type ProdError struct {
	Etype string
	Msg   string
}

func (e *ProdError) Error() string {
	return fmt.Sprintf("%s: %s", e.Etype, e.Msg)
}

// InfraError reports that the lab or the test tooling is broken.
type InfraError struct {
	Etype string
	Msg   string
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("%s: %s", e.Etype, e.Msg)
}

func NewProdError(etype string, msg string) *ProdError {
	return &ProdError{Etype: etype, Msg: msg}
}

func NewInfraError(etype string, msg string) *InfraError {
	return &InfraError{Etype: etype, Msg: msg}
}

// IsProd reports whether err, or an error it wraps, is a ProdError.
func IsProd(err error) bool {
	var pe *ProdError
	return errors.As(err, &pe)
}

// IsInfra reports whether err, or an error it wraps, is an InfraError.
func IsInfra(err error) bool {
	var ie *InfraError
	return errors.As(err, &ie)
}

// Etype returns the tag of a classified error and "" for anything else.
func Etype(err error) string {
	var pe *ProdError
	if errors.As(err, &pe) {
		return pe.Etype
	}
	var ie *InfraError
	if errors.As(err, &ie) {
		return ie.Etype
	}
	return ""
}

// FailHandler receives the formatted failure message; it must not return.
type FailHandler func(message string, callerSkip ...int)

var failHandler FailHandler = ginkgo.Fail

// SetFailHandler replaces the handler used by Prod and Infra, returning the
// previous one. Passing nil restores the ginkgo handler.
func SetFailHandler(handler FailHandler) FailHandler {
	prev := failHandler
	if handler == nil {
		handler = ginkgo.Fail
	}
	failHandler = handler
	return prev
}

// Prod fails the running test with a ProdError. It never returns.
func Prod(etype string, msg string) {
	raise(NewProdError(etype, msg))
}

// Infra fails the running test with an InfraError. It never returns.
func Infra(etype string, msg string) {
	raise(NewInfraError(etype, msg))
}

// Raise fails the running test with err when it is non nil.
func Raise(err error) {
	if err != nil {
		raise(err)
	}
}

func raise(err error) {
	failHandler(err.Error(), 2)
	// a handler that returns breaks the never-returns contract
	panic(err)
}

// ExpectNoProdError asserts that err does not report a product defect.
func ExpectNoProdError(err error) {
	gomega.ExpectWithOffset(1, IsProd(err)).To(gomega.BeFalse(), "product failure: %v", err)
}

// ExpectNoInfraError asserts that err does not report a lab defect.
func ExpectNoInfraError(err error) {
	gomega.ExpectWithOffset(1, IsInfra(err)).To(gomega.BeFalse(), "infrastructure failure: %v", err)
}
