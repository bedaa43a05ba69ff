package cluster

import (
	"context"
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
)

// ErrorKind classifies a failed cluster query.
type ErrorKind string

const (
	KindUnavailable ErrorKind = "unavailable" // API server unreachable or refused the call
	KindTimeout     ErrorKind = "timeout"
	KindUnsupported ErrorKind = "unsupported" // resource not served (e.g. no metrics-server)
)

// Sentinels matched by errors.Is against a *QueryError.
var (
	ErrUnavailable = errors.New("cluster unavailable")
	ErrTimeout     = errors.New("cluster query timed out")
	ErrUnsupported = errors.New("resource not supported by cluster")
)

// QueryError is returned by every Collector method.
type QueryError struct {
	Resource string
	Kind     ErrorKind
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %s: %v", e.Resource, e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is lets callers test the kind with errors.Is(err, cluster.ErrTimeout).
func (e *QueryError) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrUnsupported:
		return e.Kind == KindUnsupported
	}
	return false
}

func classify(ctx context.Context, resource string, err error) error {
	kind := KindUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() == context.DeadlineExceeded, apierrors.IsTimeout(err), apierrors.IsServerTimeout(err):
		kind = KindTimeout
	case apierrors.IsNotFound(err), meta.IsNoMatchError(err), apierrors.IsServiceUnavailable(err) && resource == "nodemetrics":
		kind = KindUnsupported
	}
	return &QueryError{Resource: resource, Kind: kind, Err: err}
}
