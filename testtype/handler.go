// Package testtype maps a traffic protocol onto the concrete server and
// client roles that drive it. Handlers are registered at init time and looked
// up by test type when the driver builds a test case.
package testtype

import (
	"github.com/pkg/errors"

	"github.com/trafficflow/tft/task"
	"github.com/trafficflow/tft/types"
)

// Handler builds the server/client pair for one traffic protocol.
type Handler interface {
	TestType() types.TestType

	// CanRunReverse reports whether the protocol supports swapping the
	// traffic direction.
	CanRunReverse() bool

	// CreateServerClient constructs the pair. The client holds a reference
	// to the server to resolve its target address.
	CreateServerClient(ts *task.TestSettings) (task.Server, task.Client, error)
}

var handlers = map[types.TestType]Handler{}

func register(h Handler) {
	handlers[h.TestType()] = h
}

// Get returns the handler for a test type. Types without a handler (eg. HTTP)
// are rejected at plan-validation time.
func Get(tt types.TestType) (Handler, error) {
	h, ok := handlers[tt]
	if !ok {
		return nil, errors.Errorf("no handler for test type %s", tt)
	}
	return h, nil
}
