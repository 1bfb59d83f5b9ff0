package validate

import (
	"errors"
	"fmt"
	"strings"
)

// Severity indicates how serious an issue is
type Severity string

const (
	// SeverityError blocks rendering
	SeverityError Severity = "Error"

	// SeverityWarning is reported but does not block rendering
	SeverityWarning Severity = "Warning"
)

// Code classifies an issue
type Code string

const (
	CodeUnresolvedStorage   Code = "UnresolvedStorage"
	CodeUnresolvedSecret    Code = "UnresolvedSecret"
	CodeUnresolvedSecretKey Code = "UnresolvedSecretKey"
	CodeUnresolvedConfigMap Code = "UnresolvedConfigMap"
	CodeUnresolvedConfigKey Code = "UnresolvedConfigKey"
	CodeNegativeReplicas    Code = "NegativeReplicas"
	CodeInvalidQuantity     Code = "InvalidQuantity"
	CodeNegativeQuantity    Code = "NegativeQuantity"
	CodeDuplicateName       Code = "DuplicateName"
	CodeInvalidName         Code = "InvalidName"
	CodeMissingImage        Code = "MissingImage"
	CodeUnknownKind         Code = "UnknownKind"
	CodeUnknownDependency   Code = "UnknownDependency"
	CodeUnknownAccount      Code = "UnknownServiceAccount"
	CodeInvalidAccessMode   Code = "InvalidAccessMode"
	CodeInvalidPort         Code = "InvalidPort"
	CodeInvalidEndpoint     Code = "InvalidEndpoint"
	CodeInvalidEnv          Code = "InvalidEnvBinding"
	CodeUnusedStorage       Code = "UnusedStorage"
	CodeJobReplicas         Code = "JobReplicas"
	CodeHighReplicas        Code = "HighReplicas"
)

// Issue is a single consistency problem found in a topology
type Issue struct {
	Code     Code     `json:"code"`
	Severity Severity `json:"severity"`

	// Entity names the offending service, claim, secret or config map
	Entity string `json:"entity"`

	// Path locates the offending field, e.g. services[worker].mounts[0].claim
	Path string `json:"path"`

	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s %s: %s (%s)", i.Severity, i.Path, i.Message, i.Code)
}

// Issues is the batch of problems found by a validation pass
type Issues []Issue

// HasErrors reports whether any issue has Error severity
func (is Issues) HasErrors() bool {
	for _, i := range is {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only Error-severity issues
func (is Issues) Errors() Issues {
	return is.filter(SeverityError)
}

// Warnings returns only Warning-severity issues
func (is Issues) Warnings() Issues {
	return is.filter(SeverityWarning)
}

// ForEntity returns the issues raised against the named entity
func (is Issues) ForEntity(name string) Issues {
	var out Issues
	for _, i := range is {
		if i.Entity == name {
			out = append(out, i)
		}
	}
	return out
}

func (is Issues) filter(sev Severity) Issues {
	var out Issues
	for _, i := range is {
		if i.Severity == sev {
			out = append(out, i)
		}
	}
	return out
}

// Err returns an error describing all Error-severity issues, or nil
func (is Issues) Err() error {
	errs := is.Errors()
	if len(errs) == 0 {
		return nil
	}
	return &Error{Issues: errs}
}

// Error wraps Error-severity issues so callers can abort a pipeline with them
type Error struct {
	Issues Issues
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		msgs = append(msgs, i.String())
	}
	return fmt.Sprintf("topology has %d validation error(s): %s", len(e.Issues), strings.Join(msgs, "; "))
}

// AsError extracts validation issues from an error chain
func AsError(err error) (*Error, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
