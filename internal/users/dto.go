package users

import "time"

// UserResponse is the wire shape of a usuarios row. The credential hash
// never leaves the service.
type UserResponse struct {
	ID          int64     `json:"id_usuario"`
	Username    string    `json:"usuario"`
	DisplayName string    `json:"nombre"`
	Active      bool      `json:"estado"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateUserRequest is the POST /usuarios payload.
type CreateUserRequest struct {
	Username    string `json:"usuario" validate:"required,min=3,max=64"`
	Password    string `json:"contrasena" validate:"required,min=6"`
	DisplayName string `json:"nombre" validate:"max=128"`
	Active      *bool  `json:"estado"`
}

// UpdateUserRequest is the PUT /usuarios/{id} payload. Password is optional;
// empty keeps the stored hash.
type UpdateUserRequest struct {
	Username    string `json:"usuario" validate:"required,min=3,max=64"`
	Password    string `json:"contrasena" validate:"omitempty,min=6"`
	DisplayName string `json:"nombre" validate:"max=128"`
	Active      bool   `json:"estado"`
}

// LoginRequest is the POST /usuarios/login payload.
type LoginRequest struct {
	Username string `json:"usuario" validate:"required"`
	Password string `json:"contrasena" validate:"required"`
}

// LoginResponse carries the opaque session token.
type LoginResponse struct {
	Message string       `json:"mensaje"`
	Token   string       `json:"token"`
	User    UserResponse `json:"usuario"`
}

func toResponse(user User) UserResponse {
	return UserResponse{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Active:      user.Active,
		CreatedAt:   user.CreatedAt,
	}
}

func toResponses(list []User) []UserResponse {
	out := make([]UserResponse, len(list))
	for i, user := range list {
		out[i] = toResponse(user)
	}
	return out
}

// auditDetail is the post-image stored on audit entries for user mutations.
func auditDetail(user User) map[string]any {
	return map[string]any{
		"id_usuario": user.ID,
		"usuario":    user.Username,
		"estado":     user.Active,
	}
}
