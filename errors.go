package oaccrefac

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// -- Rejection Taxonomy --

// Rejection classes. Every *Rejection unwraps to exactly one of these.
var (
	ErrUnsupportedLoopForm    = errors.New("unsupported loop form")
	ErrUnanalyzableDependence = errors.New("unanalyzable dependence")
	ErrIllegalTransform       = errors.New("illegal transform")
	ErrAmbiguousAliasing      = errors.New("ambiguous aliasing")
)

// Request errors. These are contract violations by the caller, not analysis outcomes.
var (
	ErrNoLoopSelected   = errors.New("no for loop in selection")
	ErrNoRegionSelected = errors.New("no data construct in selection")
	ErrUnknownKind      = errors.New("unknown transform kind")
)

// SubReason narrows an ErrIllegalTransform rejection.
type SubReason string

const (
	SubFactorExceedsTripCount SubReason = "factor-exceeds-trip-count"
	SubDependenceViolation    SubReason = "dependence-violation"
	SubScopeConflict          SubReason = "scope-conflict"
	SubInvalidFactor          SubReason = "invalid-factor"
	SubInvalidParameter       SubReason = "invalid-parameter"
	SubUnknownTripCount       SubReason = "unknown-trip-count"
	SubInterchangeViolation   SubReason = "interchange-violation"
	SubMergeConflict          SubReason = "merge-conflict"
	SubNotPerfectlyNested     SubReason = "not-perfectly-nested"
)

// Rejection is the reason a transformation was refused. Rejections are
// ordinary results, carried in TransformResult.Reason.
type Rejection struct {
	Class  error
	Sub    SubReason
	Detail string
	Pos    Pos
}

func (r *Rejection) Error() string {
	var b strings.Builder
	b.WriteString(r.Class.Error())
	if r.Sub != "" {
		fmt.Fprintf(&b, " (%s)", r.Sub)
	}
	if r.Detail != "" {
		b.WriteString(": ")
		b.WriteString(r.Detail)
	}
	if r.Pos.IsValid() {
		fmt.Fprintf(&b, " at %s", r.Pos)
	}
	return b.String()
}

func (r *Rejection) Unwrap() error { return r.Class }

// Code returns a stable identifier such as "illegal-transform/dependence-violation".
func (r *Rejection) Code() string {
	code := className(r.Class)
	if r.Sub != "" {
		code += "/" + string(r.Sub)
	}
	return code
}

func (r *Rejection) MarshalJSON() ([]byte, error) {
	out := struct {
		Code   string `json:"code"`
		Detail string `json:"detail,omitempty"`
		Line   int    `json:"line,omitempty"`
		Col    int    `json:"col,omitempty"`
	}{Code: r.Code(), Detail: r.Detail, Line: r.Pos.Line, Col: r.Pos.Col}
	return json.Marshal(out)
}

func className(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedLoopForm):
		return "unsupported-loop-form"
	case errors.Is(err, ErrUnanalyzableDependence):
		return "unanalyzable-dependence"
	case errors.Is(err, ErrIllegalTransform):
		return "illegal-transform"
	case errors.Is(err, ErrAmbiguousAliasing):
		return "ambiguous-aliasing"
	}
	return "unknown"
}

func unsupported(pos Pos, format string, args ...any) *Rejection {
	return &Rejection{Class: ErrUnsupportedLoopForm, Detail: fmt.Sprintf(format, args...), Pos: pos}
}

func illegal(sub SubReason, pos Pos, format string, args ...any) *Rejection {
	return &Rejection{Class: ErrIllegalTransform, Sub: sub, Detail: fmt.Sprintf(format, args...), Pos: pos}
}

// ParseFailure reports source the C front end could not parse.
type ParseFailure struct {
	File string
	Pos  Pos
	Msg  string
}

func (e *ParseFailure) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%s: parse failure: %s", e.File, e.Pos, e.Msg)
	}
	return fmt.Sprintf("%s: parse failure: %s", e.Pos, e.Msg)
}
