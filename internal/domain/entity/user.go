package entity

// User is a member of the university directory with approver role flags
type User struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	DepartmentID  string `json:"department_id"`
	IsHead        bool   `json:"is_head"`
	IsAdmin       bool   `json:"is_admin"`
	IsComptroller bool   `json:"is_comptroller"`
	IsHR          bool   `json:"is_hr"`
	IsVP          bool   `json:"is_vp"`
	IsPresident   bool   `json:"is_president"`
	IsActive      bool   `json:"is_active"`
}

// Department is an organisational unit; heads of the parent department
// review requests after the department's own head.
type Department struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	ParentDepartmentID *string `json:"parent_department_id,omitempty"`
}
