package common

type Role string

const (
	RoleManager Role = "manager"
	RoleDriver  Role = "driver"
)

func (r Role) Valid() bool {
	return r == RoleManager || r == RoleDriver
}

// Actor is the authenticated caller of a domain operation.
type Actor struct {
	Role Role
	ID   string
}

// SystemActor is used by background jobs acting with manager authority.
var SystemActor = Actor{Role: RoleManager, ID: "system"}

func (a Actor) IsManager() bool { return a.Role == RoleManager }
func (a Actor) IsDriver() bool  { return a.Role == RoleDriver }
