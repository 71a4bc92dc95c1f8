package services

import (
	"context"
	"errors"
	"time"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
)

// callUpstream runs fn under a deadline and classifies the failure.
// Nothing is persisted by fn's caller until it returns nil.
func callUpstream(ctx context.Context, d time.Duration, service string, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	err := fn(cctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return apperr.UpstreamTimeout(service, err)
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.UpstreamUnavailable(service, err.Error())
}
