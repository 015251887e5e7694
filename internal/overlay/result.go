package overlay

import "github.com/ztpipe/ztpipe/internal/ztproto"

// ResultCode is the overlay library's own result taxonomy, carried as a raw
// numeric code so this package never needs the library's concrete enum type.
type ResultCode int

// Result codes, named after the library's own constants for traceability
// even though the adapter only ever inspects the Kind mapResult returns.
const (
	ResultOK                      ResultCode = 0
	ResultOKIgnored               ResultCode = 1
	ResultFatalErrorOutOfMemory   ResultCode = 100
	ResultFatalErrorDataStoreFail ResultCode = 101
	ResultFatalErrorInternal      ResultCode = 102
	ResultErrorNetworkNotFound    ResultCode = 200
	ResultErrorUnsupportedOp      ResultCode = 201
	ResultErrorBadParameter       ResultCode = 202
)

// mapResult translates a library result code to the adapter's Kind
// taxonomy, case for case. Unrecognized codes map to KindInternal; there
// is no separate transport-error Kind.
func mapResult(rv ResultCode) ztproto.Kind {
	switch rv {
	case ResultOK, ResultOKIgnored:
		return ztproto.KindUnspecified
	case ResultFatalErrorOutOfMemory:
		return ztproto.KindOutOfMemory
	case ResultFatalErrorDataStoreFail:
		return ztproto.KindPermission
	case ResultFatalErrorInternal:
		return ztproto.KindInternal
	case ResultErrorNetworkNotFound:
		return ztproto.KindAddressInvalid
	case ResultErrorUnsupportedOp:
		return ztproto.KindUnsupported
	case ResultErrorBadParameter:
		return ztproto.KindInvalid
	default:
		return ztproto.KindInternal
	}
}
