package rbac

import "time"

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64
	Name        string
	Description string
	Active      bool
	CreatedAt   time.Time
}

// Permission represents a grant of CRUD operations on a named resource.
// Operations holds the encoded operation set (see internal/perms); Name is
// the resource name a request is matched against.
type Permission struct {
	ID         int64
	Name       string
	Operations string
	URL        string
	ModuleID   int64
	Active     bool
}

// UserRole links a user to a role. The pair is unique.
type UserRole struct {
	UserID int64
	RoleID int64
}

// RolePermission links a permission to a role. The pair is unique.
type RolePermission struct {
	RoleID       int64
	PermissionID int64
}

// Grant is one row of the user->role->permission join, as consumed by the
// resolver.
type Grant struct {
	Resource         string
	Operations       string
	RoleActive       bool
	PermissionActive bool
}
