package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code is a machine-readable error code. Presentation layers translate codes
// (with their metadata) into localized messages.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Naming errors
	CodeDuplicateName Code = "DUPLICATE_NAME"
	CodeInvalidName   Code = "INVALID_NAME"
	CodeNotFound      Code = "NOT_FOUND"

	// Formula errors
	CodeSelfCycle         Code = "SELF_CYCLE"
	CodeCycle             Code = "CYCLE"
	CodeDuplicateArgument Code = "DUPLICATE_ARGUMENT"
	CodeAritySingle       Code = "ARITY_SINGLE"
	CodeArityExactlyTwo   Code = "ARITY_EXACTLY_TWO"
	CodeArityAtLeast      Code = "ARITY_AT_LEAST"
	CodeInvalidVoteNumber Code = "INVALID_VOTE_NUMBER"

	// Structure errors
	CodeFaultTreeRedefined     Code = "FAULT_TREE_REDEFINED"
	CodeTopGate                Code = "TOP_GATE"
	CodeEventHasDependents     Code = "EVENT_HAS_DEPENDENTS"
	CodeFaultTreeHasDependents Code = "FAULT_TREE_HAS_DEPENDENTS"
	CodeInvalidEvent           Code = "INVALID_EVENT"
	CodeInvalidExpression      Code = "INVALID_EXPRESSION"

	// Load errors
	CodeInitialization Code = "INITIALIZATION"

	// History errors
	CodeNothingToUndo Code = "NOTHING_TO_UNDO"
	CodeNothingToRedo Code = "NOTHING_TO_REDO"

	// Analysis boundary errors
	CodeMissingExpression Code = "MISSING_EXPRESSION"
	CodeInvalidSettings   Code = "INVALID_SETTINGS"
)

// Initialization sub-kinds reported through the "kind" metadata key.
const (
	InitIOError         = "IO_ERROR"
	InitXMLValidity     = "XML_VALIDITY_ERROR"
	InitValidationError = "VALIDATION_ERROR"
)

// Metadata keys shared by errors and command descriptions.
const (
	MetaName       = "name"
	MetaNewName    = "new_name"
	MetaArgument   = "argument"
	MetaGate       = "gate"
	MetaConnective = "connective"
	MetaMin        = "min"
	MetaFaultTree  = "fault_tree"
	MetaRoot       = "root"
	MetaDependents = "dependents"
	MetaKind       = "kind"
	MetaFile       = "file"
	MetaLine       = "line"
	MetaElement    = "element"
	MetaAttribute  = "attribute"
	MetaReason     = "reason"
)

// Error is the structured error type returned by validation and mutation
// paths. Message is for logs only; user-facing text is rendered from Code and
// Metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message != "" {
		return e.Message + ": " + e.Cause.Error()
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Meta returns the metadata value for key.
func (e *Error) Meta(key string) string {
	if e == nil || e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}

// Sentinels for errors.Is comparisons.
var (
	ErrDuplicateName          = &Error{Code: CodeDuplicateName}
	ErrInvalidName            = &Error{Code: CodeInvalidName}
	ErrNotFound               = &Error{Code: CodeNotFound}
	ErrSelfCycle              = &Error{Code: CodeSelfCycle}
	ErrCycle                  = &Error{Code: CodeCycle}
	ErrDuplicateArgument      = &Error{Code: CodeDuplicateArgument}
	ErrAritySingle            = &Error{Code: CodeAritySingle}
	ErrArityExactlyTwo        = &Error{Code: CodeArityExactlyTwo}
	ErrArityAtLeast           = &Error{Code: CodeArityAtLeast}
	ErrInvalidVoteNumber      = &Error{Code: CodeInvalidVoteNumber}
	ErrFaultTreeRedefined     = &Error{Code: CodeFaultTreeRedefined}
	ErrTopGate                = &Error{Code: CodeTopGate}
	ErrEventHasDependents     = &Error{Code: CodeEventHasDependents}
	ErrFaultTreeHasDependents = &Error{Code: CodeFaultTreeHasDependents}
	ErrInvalidEvent           = &Error{Code: CodeInvalidEvent}
	ErrInvalidExpression      = &Error{Code: CodeInvalidExpression}
	ErrInitialization         = &Error{Code: CodeInitialization}
	ErrNothingToUndo          = &Error{Code: CodeNothingToUndo}
	ErrNothingToRedo          = &Error{Code: CodeNothingToRedo}
	ErrMissingExpression      = &Error{Code: CodeMissingExpression}
	ErrInvalidSettings        = &Error{Code: CodeInvalidSettings}
)

// IsArity reports whether err is any of the connective arity errors.
func IsArity(err error) bool {
	return errors.Is(err, ErrAritySingle) ||
		errors.Is(err, ErrArityExactlyTwo) ||
		errors.Is(err, ErrArityAtLeast) ||
		errors.Is(err, ErrInvalidVoteNumber)
}

// CodeOf extracts the code of a structured error, CodeUnknown otherwise.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

func newError(code Code, msg string, meta map[string]string) *Error {
	return &Error{Code: code, Message: msg, Metadata: meta}
}

// DuplicateNameError reports a name collision in the event registry.
func DuplicateNameError(name string) *Error {
	return newError(CodeDuplicateName,
		fmt.Sprintf("the event with name %q already exists", name),
		map[string]string{MetaName: name})
}

// InvalidNameError reports an empty or otherwise unusable name.
func InvalidNameError(name, reason string) *Error {
	return newError(CodeInvalidName,
		fmt.Sprintf("invalid name %q: %s", name, reason),
		map[string]string{MetaName: name, MetaReason: reason})
}

// NotFoundError reports a missing event or fault tree.
func NotFoundError(kind, name string) *Error {
	return newError(CodeNotFound,
		fmt.Sprintf("%s %q not found", kind, name),
		map[string]string{MetaKind: kind, MetaName: name})
}

// SelfCycleError reports an argument equal to its owning gate.
func SelfCycleError(gate, arg string) *Error {
	return newError(CodeSelfCycle,
		fmt.Sprintf("the argument %q would introduce a self-cycle in gate %q", arg, gate),
		map[string]string{MetaGate: gate, MetaArgument: arg})
}

// CycleError reports an argument from which the owning gate is reachable.
func CycleError(gate, arg string) *Error {
	return newError(CodeCycle,
		fmt.Sprintf("the argument %q would introduce a cycle in gate %q", arg, gate),
		map[string]string{MetaGate: gate, MetaArgument: arg})
}

// DuplicateArgumentError reports an argument already present in the formula.
func DuplicateArgumentError(gate, arg string) *Error {
	return newError(CodeDuplicateArgument,
		fmt.Sprintf("the argument %q is already in formula of gate %q", arg, gate),
		map[string]string{MetaGate: gate, MetaArgument: arg})
}

// ArityError reports a connective whose argument count is out of bounds.
func ArityError(code Code, gate string, conn Connective, min int) *Error {
	meta := map[string]string{MetaGate: gate, MetaConnective: string(conn)}
	var msg string
	switch code {
	case CodeAritySingle:
		msg = fmt.Sprintf("%s connective requires a single argument", conn)
	case CodeArityExactlyTwo:
		msg = fmt.Sprintf("%s connective requires exactly 2 arguments", conn)
	case CodeInvalidVoteNumber:
		meta[MetaMin] = fmt.Sprint(min)
		msg = fmt.Sprintf("%s connective vote number %d must be at least 2", conn, min)
	default:
		meta[MetaMin] = fmt.Sprint(min)
		msg = fmt.Sprintf("%s connective requires at-least %d arguments", conn, min)
	}
	return newError(code, fmt.Sprintf("gate %q: %s", gate, msg), meta)
}

// FaultTreeRedefinedError reports a second root for a rooted fault tree.
func FaultTreeRedefinedError(tree string) *Error {
	return newError(CodeFaultTreeRedefined,
		fmt.Sprintf("fault tree %q is already defined with a top gate", tree),
		map[string]string{MetaFaultTree: tree})
}

// TopGateError reports a non-empty fault tree without exactly one top gate.
func TopGateError(tree string) *Error {
	return newError(CodeTopGate,
		fmt.Sprintf("fault tree %q must have a single top-gate", tree),
		map[string]string{MetaFaultTree: tree})
}

// EventDependencyError reports an event that is still referenced by formulas.
func EventDependencyError(name string, dependents []string) *Error {
	deps := append([]string(nil), dependents...)
	sort.Strings(deps)
	return newError(CodeEventHasDependents,
		fmt.Sprintf("event %q is not removable because it has dependents: %s", name, strings.Join(deps, ", ")),
		map[string]string{MetaName: name, MetaDependents: strings.Join(deps, ",")})
}

// FaultTreeDependencyError reports a fault tree that still contains non-root members.
func FaultTreeDependencyError(tree, root string, dependents []string) *Error {
	return newError(CodeFaultTreeHasDependents,
		fmt.Sprintf("fault tree %q with root %q is not removable because it has dependent non-root members: %s",
			tree, root, strings.Join(dependents, ", ")),
		map[string]string{MetaFaultTree: tree, MetaRoot: root, MetaDependents: strings.Join(dependents, ",")})
}

// InvalidEventError reports an event whose payload does not match its kind.
func InvalidEventError(name, reason string) *Error {
	return newError(CodeInvalidEvent,
		fmt.Sprintf("event %q is malformed: %s", name, reason),
		map[string]string{MetaName: name, MetaReason: reason})
}

// InvalidExpressionError reports an out-of-domain expression parameter.
func InvalidExpressionError(name, reason string) *Error {
	return newError(CodeInvalidExpression,
		fmt.Sprintf("basic event %q expression is invalid: %s", name, reason),
		map[string]string{MetaName: name, MetaReason: reason})
}

// SourceLocation pinpoints the origin of a loaded definition.
type SourceLocation struct {
	File      string
	Line      int
	Element   string
	Attribute string
}

// InitializationError wraps a load failure with its source context.
func InitializationError(kind string, loc SourceLocation, cause error) *Error {
	meta := map[string]string{MetaKind: kind}
	if loc.File != "" {
		meta[MetaFile] = loc.File
	}
	if loc.Line > 0 {
		meta[MetaLine] = fmt.Sprint(loc.Line)
	}
	if loc.Element != "" {
		meta[MetaElement] = loc.Element
	}
	if loc.Attribute != "" {
		meta[MetaAttribute] = loc.Attribute
	}
	msg := "initialization error"
	if loc.File != "" {
		msg = fmt.Sprintf("initialization error in %s", loc.File)
		if loc.Line > 0 {
			msg = fmt.Sprintf("%s:%d", msg, loc.Line)
		}
	}
	return &Error{Code: CodeInitialization, Message: msg, Metadata: meta, Cause: cause}
}

// NothingToUndoError is returned when the history is empty.
func NothingToUndoError() *Error {
	return newError(CodeNothingToUndo, "nothing to undo", nil)
}

// NothingToRedoError is returned when the redo tail is empty.
func NothingToRedoError() *Error {
	return newError(CodeNothingToRedo, "nothing to redo", nil)
}

// MissingExpressionError lists basic events without a probability source.
func MissingExpressionError(events []string) *Error {
	return newError(CodeMissingExpression,
		"not all basic events have expressions for probability analysis",
		map[string]string{MetaDependents: strings.Join(events, ",")})
}

// InvalidSettingsError reports an inconsistent analysis configuration.
func InvalidSettingsError(reason string) *Error {
	return newError(CodeInvalidSettings, "invalid analysis settings: "+reason,
		map[string]string{MetaReason: reason})
}
