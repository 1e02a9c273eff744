package query

import (
	"errors"
	"fmt"
	"net/http"
)

// Sub status codes used by the backends in this repository. Executors may use
// any other code, it is passed through to the client unchanged.
const (
	CodeBadRequest        string = "BadRequest"
	CodeEntityNotFound    string = "EntityNotFound"
	CodeInvalidPrimaryKey string = "InvalidPrimaryKey"
	CodeNotSupported      string = "NotSupported"
)

// DomainError is an intentional, client attributable failure raised by the
// query layer. Status, Code and Message are exposed to the client as is.
type DomainError struct {
	Status  int
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func NewDomainError(status int, code, msg string) error {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: msg,
	}
}

func NewBadRequestError(msg string) error {
	return NewDomainError(http.StatusBadRequest, CodeBadRequest, msg)
}

func NewEntityNotFoundError(msg string) error {
	return NewDomainError(http.StatusNotFound, CodeEntityNotFound, msg)
}

func NewInvalidPrimaryKeyError(msg string) error {
	return NewDomainError(http.StatusBadRequest, CodeInvalidPrimaryKey, msg)
}

// AsDomainError reports whether any error in err's chain is a DomainError
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
