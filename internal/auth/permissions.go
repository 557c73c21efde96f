package auth

// Well-known permission names referenced by route declarations.
const (
	PermUsersCreate = "users:create"
	PermUsersRead   = "users:read"
	PermUsersUpdate = "users:update"
	PermUsersDelete = "users:delete"

	PermEmployeesCreate = "employees:create"
	PermEmployeesRead   = "employees:read"
	PermEmployeesUpdate = "employees:update"
	PermEmployeesDelete = "employees:delete"

	PermSchedulesCreate = "schedules:create"
	PermSchedulesRead   = "schedules:read"
	PermSchedulesUpdate = "schedules:update"
	PermSchedulesDelete = "schedules:delete"

	PermAuditRead = "audit:read"
)

// BuiltinPermissions is the catalog ensured at startup. Names follow the
// resource:action convention; Module groups them for the admin UI.
var BuiltinPermissions = []Permission{
	{Name: PermUsersCreate, Module: "ADMIN", Action: "CREATE", Resource: "USER", Description: "Create user accounts"},
	{Name: PermUsersRead, Module: "ADMIN", Action: "READ", Resource: "USER", Description: "View user accounts"},
	{Name: PermUsersUpdate, Module: "ADMIN", Action: "UPDATE", Resource: "USER", Description: "Update user accounts"},
	{Name: PermUsersDelete, Module: "ADMIN", Action: "DELETE", Resource: "USER", Description: "Delete user accounts"},

	{Name: PermEmployeesCreate, Module: "HR", Action: "CREATE", Resource: "EMPLOYEE", Description: "Create employee records"},
	{Name: PermEmployeesRead, Module: "HR", Action: "READ", Resource: "EMPLOYEE", Description: "View employee records"},
	{Name: PermEmployeesUpdate, Module: "HR", Action: "UPDATE", Resource: "EMPLOYEE", Description: "Update employee records"},
	{Name: PermEmployeesDelete, Module: "HR", Action: "DELETE", Resource: "EMPLOYEE", Description: "Delete employee records"},

	{Name: PermSchedulesCreate, Module: "WFM", Action: "CREATE", Resource: "SCHEDULE", Description: "Create schedules"},
	{Name: PermSchedulesRead, Module: "WFM", Action: "READ", Resource: "SCHEDULE", Description: "View schedules"},
	{Name: PermSchedulesUpdate, Module: "WFM", Action: "UPDATE", Resource: "SCHEDULE", Description: "Update schedules"},
	{Name: PermSchedulesDelete, Module: "WFM", Action: "DELETE", Resource: "SCHEDULE", Description: "Delete schedules"},

	{Name: PermAuditRead, Module: "ADMIN", Action: "READ", Resource: "AUDIT_LOG", Description: "Query audit and login logs"},
}
