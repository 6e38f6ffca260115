package connect

import (
	"context"
	"time"

	"connectrpc.com/connect"
	zlog "github.com/rs/zerolog/log"
)

// LoggingInterceptor logs every call with its outcome and duration.
type LoggingInterceptor struct{}

// NewLoggingInterceptor creates a new logging interceptor.
func NewLoggingInterceptor() *LoggingInterceptor {
	return &LoggingInterceptor{}
}

func (i *LoggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		if req.Spec().IsClient {
			return resp, err
		}
		logCall(req.Spec().Procedure, start, err)
		return resp, err
	}
}

func (i *LoggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *LoggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		zlog.Debug().Msgf("Stream opened: procedure=%s peer=%s", conn.Spec().Procedure, conn.Peer().Addr)
		err := next(ctx, conn)
		logCall(conn.Spec().Procedure, start, err)
		return err
	}
}

func logCall(procedure string, start time.Time, err error) {
	if err != nil {
		zlog.Warn().Err(err).Msgf("RPC failed: procedure=%s code=%s duration=%s",
			procedure, connect.CodeOf(err), time.Since(start))
		return
	}
	zlog.Debug().Msgf("RPC ok: procedure=%s duration=%s", procedure, time.Since(start))
}
