package riptide

import (
	"errors"
	"fmt"
	"net"
)

var (
	ErrInvalidCfg     = errors.New("peer: invalid options")
	ErrNoAddress      = errors.New("peer: no address configured")
	ErrSecurityParams = errors.New("peer: security requested but no TLS parameters supplied")
	ErrAlreadyStarted = errors.New("peer: already started")
	ErrPeerShutdown   = errors.New("peer: shutting down")

	ErrChannelClosed = errors.New("channel: closed")
	ErrSendAborted   = errors.New("channel: send aborted")
)

// WriteError wraps a transport failure reported while writing or flushing
// items on a connection. It is always delivered through the result of the
// `Send` call in progress, never thrown across the library boundary.
type WriteError struct {
	Op     string
	Remote net.Addr
	Err    error
}

func (werr *WriteError) Error() string {
	if werr.Remote != nil {
		return fmt.Sprintf("channel: %s to %s failed: %s", werr.Op, werr.Remote, werr.Err)
	}
	return fmt.Sprintf("channel: %s failed: %s", werr.Op, werr.Err)
}

func (werr *WriteError) Unwrap() error {
	return werr.Err
}

// AbortedError carries the cause that cancelled an in-flight send, either a
// channel close or a terminal inbound failure.
type AbortedError struct {
	Cause error
}

func (aerr *AbortedError) Error() string {
	if aerr.Cause == nil {
		return ErrSendAborted.Error()
	}
	return fmt.Sprintf("%s: %s", ErrSendAborted, aerr.Cause)
}

func (aerr *AbortedError) Unwrap() error {
	return ErrSendAborted
}
