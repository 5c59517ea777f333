package audit

import "time"

// Action kinds recorded on audit entries.
const (
	ActionSelect = "SELECT"
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionLogin  = "LOGIN"
)

// ModuleSeguridad is the owning module name for all records in this service.
const ModuleSeguridad = "seguridad"

// Entry represents a row in auditoria. Entries are append-only: once written
// they are never updated.
type Entry struct {
	ID       int64
	Action   string
	Module   string
	Table    string
	UserID   *int64
	RoleName string
	Detail   map[string]any
	At       time.Time
}

// Filters narrows audit listings.
type Filters struct {
	Action   string
	Table    string
	Actor    string
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// PagingInfo describes the listing window returned to callers.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}
