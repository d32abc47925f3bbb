package jsonrpc

import (
	"errors"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ava-labs/avalanche-logfilter/pkg/filters"
)

// JSON-RPC error codes.
const (
	CodeInvalidParams = -32602
	CodeServerError   = -32000
)

// rpcError carries a JSON-RPC error code for the go-ethereum rpc server.
type rpcError struct {
	code int
	err  error
}

var _ rpc.Error = (*rpcError)(nil)

func (e *rpcError) Error() string  { return e.err.Error() }
func (e *rpcError) ErrorCode() int { return e.code }
func (e *rpcError) Unwrap() error  { return e.err }

// toRPCError maps a service error onto its JSON-RPC code.
func toRPCError(err error) error {
	if err == nil {
		return nil
	}
	code := CodeServerError
	if errors.Is(err, filters.ErrInvalidParams) || errors.Is(err, filters.ErrInvalidRange) {
		code = CodeInvalidParams
	}
	return &rpcError{code: code, err: err}
}
