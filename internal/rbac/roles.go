package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleWriter may append audit log records.
	RoleWriter = "writer"
	// RoleAuditor may list records and run tamper verification.
	RoleAuditor = "auditor"
	// RoleAdmin may do everything.
	RoleAdmin = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
