package gateway

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/diwise/entity-gateway/internal/pkg/application/query"
)

// Failure is either a DomainFailure or an UnclassifiedFailure
type Failure interface {
	error
	failure()
}

// DomainFailure carries a status, code and message that are safe to hand to
// the client unchanged.
type DomainFailure struct {
	Status  int
	Code    string
	Message string
}

func (DomainFailure) failure() {}

func (f DomainFailure) Error() string {
	return fmt.Sprintf("%s (%d): %s", f.Code, f.Status, f.Message)
}

// UnclassifiedFailure is anything the query layer did not raise on purpose,
// a returned error or a recovered panic.
type UnclassifiedFailure struct {
	Message string
	Trace   string
}

func (UnclassifiedFailure) failure() {}

func (f UnclassifiedFailure) Error() string {
	return f.Message
}

// Classify sorts err into a domain or an unclassified failure. The trace of
// an unclassified failure is the cause chain of err followed by the stack of
// the classifying goroutine.
func Classify(err error) Failure {
	if f, ok := err.(Failure); ok {
		return f
	}

	if de, ok := query.AsDomainError(err); ok {
		return DomainFailure{
			Status:  de.Status,
			Code:    de.Code,
			Message: de.Message,
		}
	}

	return UnclassifiedFailure{
		Message: err.Error(),
		Trace:   causeChain(err) + "\n\n" + string(debug.Stack()),
	}
}

func recovered(r any, stack []byte) UnclassifiedFailure {
	msg := ""

	switch v := r.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = fmt.Sprintf("%v", v)
	}

	return UnclassifiedFailure{
		Message: msg,
		Trace:   string(stack),
	}
}

// causeChain lists every layer of a wrapped error, outermost first
func causeChain(err error) string {
	b := strings.Builder{}
	depth := 0

	for e := err; e != nil; depth++ {
		if depth > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d: %T: %s", depth, e, e.Error())

		switch x := e.(type) {
		case interface{ Unwrap() error }:
			e = x.Unwrap()
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				fmt.Fprintf(&b, "\n%d: %T: %s", depth+1, inner, inner.Error())
			}
			e = nil
		default:
			e = nil
		}
	}

	return b.String()
}
