package constants

import (
	"fmt"
	"strings"
)

const (
	RoleAdmin   = "admin"
	RoleBursar  = "bursar"
	RoleTeacher = "teacher"
	RoleParent  = "parent"
	RoleStudent = "student"
	RoleOwner   = "owner"
	RoleSystem  = "system"
)

// Template pesan error role
const (
	ErrRoleNotAllowed = "role not allowed for %s"
	ErrTenantMismatch = "tenant claim does not match requested school"
	ErrAnonymousWrite = "authentication required for %s"
)

func RoleErrorOperation(op string) string {
	return fmt.Sprintf(ErrRoleNotAllowed, op)
}

// legacy role names from JWT issuers still in circulation
var roleAliases = map[string]string{
	"bendahara": RoleBursar,
	"treasurer": RoleBursar,
	"dkm":       RoleAdmin,
	"wali":      RoleParent,
	"guardian":  RoleParent,
}

// NormalizeRole lowercases and maps legacy aliases.
func NormalizeRole(r string) string {
	r = strings.ToLower(strings.TrimSpace(r))
	if v, ok := roleAliases[r]; ok {
		return v
	}
	return r
}

// ==========================
// ✅ Grouped Role Slices
// ==========================
var (
	BillingStaff = []string{
		RoleAdmin,
		RoleBursar,
	}

	Payers = []string{
		RoleAdmin,
		RoleBursar,
		RoleParent,
		RoleStudent,
	}

	AcademicStaff = []string{
		RoleAdmin,
		RoleTeacher,
	}

	ReportCardReaders = []string{
		RoleAdmin,
		RoleTeacher,
		RoleParent,
		RoleStudent,
	}

	SystemOnly = []string{
		RoleSystem,
	}
)
