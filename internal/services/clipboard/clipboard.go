// Package clipboard provides access to the system clipboard.
package clipboard

import (
	"errors"

	"github.com/atotto/clipboard"
)

// ErrEmptyDocument is returned when an empty document is offered for copying.
var ErrEmptyDocument = errors.New("refusing to copy an empty document")

// Writer sends rendered documents to the system clipboard.
type Writer interface {
	Write(document string) error
}

// Service implements Writer using github.com/atotto/clipboard.
type Service struct{}

// NewService constructs a clipboard Writer implementation.
func NewService() *Service {
	return &Service{}
}

// Write copies document to the system clipboard. Empty documents are
// rejected.
func (service *Service) Write(document string) error {
	if document == "" {
		return ErrEmptyDocument
	}
	return clipboard.WriteAll(document)
}

var _ Writer = (*Service)(nil)
