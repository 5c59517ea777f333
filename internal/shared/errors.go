package shared

import "errors"

var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique constraint was violated.
	ErrDuplicate = errors.New("already exists")
	// ErrValidation indicates malformed or incomplete input.
	ErrValidation = errors.New("validation failed")
	// ErrPermissionDenied indicates the actor lacks the required grant.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuditWrite indicates the business operation succeeded but its
	// audit record did not persist.
	ErrAuditWrite = errors.New("audit write failed")
)

// UserSafeMessage translates domain errors into messages suitable for API
// consumers without leaking storage internals.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "registro no encontrado"
	case errors.Is(err, ErrDuplicate):
		return "el registro ya existe"
	case errors.Is(err, ErrValidation):
		return "datos inválidos"
	case errors.Is(err, ErrPermissionDenied):
		return "acceso denegado"
	case errors.Is(err, ErrInvalidCredentials):
		return "usuario o contraseña incorrectos"
	case errors.Is(err, ErrAuditWrite):
		return "la operación se completó pero no pudo auditarse"
	default:
		return "error del servidor"
	}
}
