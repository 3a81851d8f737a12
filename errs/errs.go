// Package errs defines the error taxonomy from spec.md §7. Render and
// catalog code returns plain wrapped errors (%w) in the teacher's style; the
// sentinel kinds here let callers distinguish them with errors.Is/As without
// the HTTP-shim status-code mapping leaking into the core.
package errs

import "fmt"

// Kind identifies one of the taxonomy rows in spec.md §7.
type Kind string

const (
	KindInvalidTileRequest Kind = "invalid_tile_request"
	KindNoDataAvailable    Kind = "no_data_available"
	KindNoCatalogAvailable Kind = "no_catalog_available"
	KindDataReadFailed     Kind = "data_read_failed"
	KindInternalInvariant  Kind = "internal_invariant"
)

// Error wraps an underlying cause with a taxonomy Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, errs.ErrNoDataAvailable) style comparisons by
// matching on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// InvalidTileRequest reports a tile request outside the catalog's declared
// bounds or zoom range.
func InvalidTileRequest(op string, err error) *Error { return newf(KindInvalidTileRequest, op, err) }

// NoDataAvailable reports that source selection or compositing produced no
// usable pixels.
func NoDataAvailable(op string, err error) *Error { return newf(KindNoDataAvailable, op, err) }

// NoCatalogAvailable reports a render call made with neither a catalog nor an
// explicit source list.
func NoCatalogAvailable(op string, err error) *Error { return newf(KindNoCatalogAvailable, op, err) }

// DataReadFailed reports a per-source I/O failure. Callers log and skip the
// source; the error is surfaced only when no source succeeds.
func DataReadFailed(op string, err error) *Error { return newf(KindDataReadFailed, op, err) }

// InternalInvariant reports a programmer error such as a bounds/CRS/shape
// mismatch during paste. These are not expected to occur in correct code and
// should fail fast rather than be handled.
func InternalInvariant(op string, err error) *Error { return newf(KindInternalInvariant, op, err) }

// sentinels usable with errors.Is(err, errs.ErrNoDataAvailable) etc. without
// constructing a full Error.
var (
	ErrInvalidTileRequest = &Error{Kind: KindInvalidTileRequest}
	ErrNoDataAvailable    = &Error{Kind: KindNoDataAvailable}
	ErrNoCatalogAvailable = &Error{Kind: KindNoCatalogAvailable}
	ErrDataReadFailed     = &Error{Kind: KindDataReadFailed}
	ErrInternalInvariant  = &Error{Kind: KindInternalInvariant}
)
