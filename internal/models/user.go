package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RolePublisher  UserRole = "PUBLISHER"
	RoleAdvertiser UserRole = "ADVERTISER"
	RoleViewer     UserRole = "VIEWER"
)

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	PageCount  int `json:"page_count"`
}

// NewPagination computes the page count for the given totals.
func NewPagination(page, size, total int) *Pagination {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return &Pagination{Page: page, PageSize: size, TotalCount: total, PageCount: pages}
}
