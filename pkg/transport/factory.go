package transport

import (
	"errors"
	"fmt"
	"strings"
)

// Connection string schemes. Only inproc has an in-process implementation;
// the network schemes are recognized so configs validate, but their
// endpoints live in external adapter processes.
const (
	SchemeInProc   = "inproc://"
	SchemeTCP      = "tcp://"
	SchemeRabbitMQ = "rabbitmq://"
	SchemeAMQP     = "amqp://"
)

// ErrExternalTransport is returned for recognized schemes this process
// does not serve.
var ErrExternalTransport = errors.New("transport scheme requires an external adapter")

// NewFromConnString creates an endpoint from a connection string such as
// "inproc://table-service". A nil registry means the process default.
func NewFromConnString(reg *Registry, connString string) (*Transport, error) {
	switch {
	case strings.HasPrefix(connString, SchemeInProc):
		id := strings.TrimPrefix(connString, SchemeInProc)
		if id == "" {
			return nil, fmt.Errorf("connection string %q has no transport id", connString)
		}
		return NewTransport(reg, id)

	case strings.HasPrefix(connString, SchemeTCP),
		strings.HasPrefix(connString, SchemeRabbitMQ),
		strings.HasPrefix(connString, SchemeAMQP):
		return nil, fmt.Errorf("%w: %s", ErrExternalTransport, connString)

	default:
		return nil, fmt.Errorf("unrecognized transport connection string %q", connString)
	}
}
