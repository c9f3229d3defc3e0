package grpcjson

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"goa.design/bridge/bridgeerrors"
)

// toStatus maps a bridgeerrors.Kind (spec.md §7's closed error-kind set) to
// a grpc/codes.Code, the way a goa-generated transport layer maps service
// errors onto gRPC status codes. err crossing this boundary never carries
// a Go stack trace, matching the propagation rule in spec.md §7.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	kind := bridgeerrors.KindOf(err)
	var code codes.Code
	switch kind {
	case bridgeerrors.KindSessionNotFound:
		code = codes.NotFound
	case bridgeerrors.KindDuplicateSession, bridgeerrors.KindDuplicateTurn, bridgeerrors.KindDuplicateResponse:
		code = codes.AlreadyExists
	case bridgeerrors.KindUnknownTurn:
		code = codes.FailedPrecondition
	case bridgeerrors.KindSubscriberTooSlow:
		code = codes.ResourceExhausted
	case bridgeerrors.KindConnectionLost:
		code = codes.Unavailable
	case bridgeerrors.KindCancelled:
		code = codes.Canceled
	case bridgeerrors.KindStorage:
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// fromStatus recovers a bridgeerrors.Error from a gRPC status error
// returned by a remote coordinator, so pluginbridge can branch on Kind.
// Each code maps back to a single kind: AlreadyExists comes back as
// KindDuplicateTurn and Unavailable as KindConnectionLost, so
// KindDuplicateSession, KindDuplicateResponse and KindStorage are not
// recovered as such.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return bridgeerrors.Wrap(bridgeerrors.KindInternal, err, "")
	}
	var kind bridgeerrors.Kind
	switch st.Code() {
	case codes.NotFound:
		kind = bridgeerrors.KindSessionNotFound
	case codes.AlreadyExists:
		kind = bridgeerrors.KindDuplicateTurn
	case codes.FailedPrecondition:
		kind = bridgeerrors.KindUnknownTurn
	case codes.ResourceExhausted:
		kind = bridgeerrors.KindSubscriberTooSlow
	case codes.Unavailable:
		kind = bridgeerrors.KindConnectionLost
	case codes.Canceled:
		kind = bridgeerrors.KindCancelled
	default:
		kind = bridgeerrors.KindInternal
	}
	return bridgeerrors.New(kind, "%s", st.Message())
}
