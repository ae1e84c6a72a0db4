package broker

import (
	"errors"
	"fmt"
)

var (
	errNotConnected      = errors.New("not connected")
	ErrConnectionTimeout = errors.New("timed out waiting for connection ack")
	ErrDisconnectTimeout = errors.New("timed out waiting for connection close")
	ErrIdentityTimeout   = errors.New("order id seed never arrived")
	ErrCancelled         = errors.New("request cancelled")
)

// Error codes the broker sends that this client gives semantic meaning to.
// Everything else surfaces as an opaque *BrokerError.
const (
	CodeAmbiguousContract  = 201
	CodeOrderCancelled     = 202
	CodeInvalidOrderType   = 387
	CodeCannotCancel       = 10147
	CodeCannotCancelFilled = 10148
)

// BrokerError carries an unrecognized broker rejection back to the caller.
type BrokerError struct {
	Code    int
	Message string
	ReqID   int64
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker error code=%d reqID=%d: %s", e.Code, e.ReqID, e.Message)
}

func newBrokerError(ev Event) *BrokerError {
	return &BrokerError{Code: ev.Code, Message: ev.Message, ReqID: ev.ReqID}
}
