package connect

import (
	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/exitcall/internal/domain/call"
)

// toConnectError maps domain errors to Connect codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var code connect.Code
	switch {
	case errors.Is(err, call.ErrInvalidTransition):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, call.ErrSessionNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, call.ErrStoreUnavailable):
		code = connect.CodeUnavailable
	case errors.IsAny(err, call.ErrInvalidSettings, call.ErrUnsupportedUpload):
		code = connect.CodeInvalidArgument
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}

// fromConnectError marks a client-side error with the matching domain
// error so callers can use errors.Is across the wire.
func fromConnectError(err error) error {
	if err == nil {
		return nil
	}
	switch connect.CodeOf(err) {
	case connect.CodeFailedPrecondition:
		return errors.Mark(err, call.ErrInvalidTransition)
	case connect.CodeNotFound:
		return errors.Mark(err, call.ErrSessionNotFound)
	case connect.CodeUnavailable:
		return errors.Mark(err, call.ErrStoreUnavailable)
	case connect.CodeInvalidArgument:
		return errors.Mark(err, call.ErrInvalidSettings)
	default:
		return err
	}
}
