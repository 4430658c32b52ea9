package app

import (
	"errors"

	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

var (
	ErrNotFound = ports.ErrNotFound
	ErrConflict = ports.ErrConflict

	ErrInvalidInput = errors.New("invalid input")
)

// Codes stables des erreurs métier.
const (
	CodeNetwork          = "network_error"
	CodeParse            = "parse_error"
	CodePersistence      = "persistence_error"
	CodePermissionDenied = "permission_denied"
)

// CodedError porte un code d'erreur stable, exploitable par l'API HTTP et les logs.
//
// Exemples de codes: network_error, parse_error, persistence_error, permission_denied.
type CodedError struct {
	Code    string
	Message string
	Err     error
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }

func NetworkError(msg string, err error) error {
	return &CodedError{Code: CodeNetwork, Message: msg, Err: err}
}

func ParseError(msg string, err error) error {
	return &CodedError{Code: CodeParse, Message: msg, Err: err}
}

func PersistenceError(msg string, err error) error {
	return &CodedError{Code: CodePersistence, Message: msg, Err: err}
}

// ErrPermissionDenied est renvoyé quand la permission de notification n'est pas accordée.
var ErrPermissionDenied = &CodedError{Code: CodePermissionDenied, Message: "notification permission denied"}

// HasCode indique si err (ou une erreur qu'elle enveloppe) est une CodedError avec ce code.
func HasCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}
