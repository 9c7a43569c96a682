// Package apperr defines the kinded errors shared by the accumulator stores,
// engine, cache and query layers. Callers branch on Kind, never on message text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindTenantMismatch
	KindInconsistentLedger
	KindPlanRuleMissing
	KindCacheRaceTimeout
	KindInvalid
	KindConflict
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindNotFound:           "not_found",
	KindTenantMismatch:     "tenant_mismatch",
	KindInconsistentLedger: "inconsistent_ledger",
	KindPlanRuleMissing:    "plan_rule_missing",
	KindCacheRaceTimeout:   "cache_race_timeout",
	KindInvalid:            "invalid",
	KindConflict:           "conflict",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels usable with errors.Is.
var (
	ErrInternal           = &Error{Kind: KindInternal}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrTenantMismatch     = &Error{Kind: KindTenantMismatch}
	ErrInconsistentLedger = &Error{Kind: KindInconsistentLedger}
	ErrPlanRuleMissing    = &Error{Kind: KindPlanRuleMissing}
	ErrCacheRaceTimeout   = &Error{Kind: KindCacheRaceTimeout}
	ErrInvalid            = &Error{Kind: KindInvalid}
	ErrConflict           = &Error{Kind: KindConflict}
)

// Error carries a Kind, the operation that failed, a message and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrNotFound) works
// regardless of Op and Msg.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a kinded error.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to an existing error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error kind to the status returned to API callers.
// TenantMismatch and InconsistentLedger deliberately look like NotFound.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound, KindTenantMismatch, KindInconsistentLedger:
		return http.StatusNotFound
	case KindPlanRuleMissing:
		return http.StatusUnprocessableEntity
	case KindCacheRaceTimeout:
		return http.StatusServiceUnavailable
	case KindInvalid:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to return to API callers. Kinds that surface
// as NotFound never leak the underlying detail.
func PublicMessage(err error) string {
	switch KindOf(err) {
	case KindNotFound, KindTenantMismatch, KindInconsistentLedger:
		return "not found"
	case KindCacheRaceTimeout:
		return "accumulator busy, retry later"
	case KindInternal:
		return "internal error"
	}
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}
