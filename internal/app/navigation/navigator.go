package navigation

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Navigator delivers navigation requests. Implementations may stamp
// SequenceNo and IssuedAt on req.
type Navigator interface {
	Navigate(ctx context.Context, req *Request) error
}

// Multi delivers to each navigator in order. Every navigator is tried;
// the errors are combined.
type Multi []Navigator

func (m Multi) Navigate(ctx context.Context, req *Request) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = errors.CombineErrors(err, n.Navigate(ctx, req))
	}
	return err
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, req *Request) error

func (f NavigatorFunc) Navigate(ctx context.Context, req *Request) error {
	return f(ctx, req)
}
