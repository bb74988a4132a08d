package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/travel-approval/internal/application/port"
	"github.com/garyjia/travel-approval/internal/domain/entity"
	"github.com/garyjia/travel-approval/internal/domain/workflow"
	"github.com/garyjia/travel-approval/pkg/utils"
)

var roleColumns = map[workflow.Role]string{
	workflow.RoleHead:        "is_head",
	workflow.RoleAdmin:       "is_admin",
	workflow.RoleComptroller: "is_comptroller",
	workflow.RoleHR:          "is_hr",
	workflow.RoleVP:          "is_vp",
	workflow.RolePresident:   "is_president",
}

const userColumns = `id, name, email, department_id, is_head, is_admin,
	is_comptroller, is_hr, is_vp, is_president, is_active`

// UserRepository implements port.UserRepository over the users and departments tables
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new user. An empty e-mail is allowed.
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	if user.Email != "" {
		if err := utils.ValidateEmail(user.Email); err != nil {
			return fmt.Errorf("failed to create user %s: %w", user.ID, err)
		}
	}

	query := `
		INSERT INTO users (
			id, name, email, department_id, is_head, is_admin,
			is_comptroller, is_hr, is_vp, is_president, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := executor(ctx, r.db).ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		nullableString(&user.DepartmentID),
		user.IsHead,
		user.IsAdmin,
		user.IsComptroller,
		user.IsHR,
		user.IsVP,
		user.IsPresident,
		user.IsActive,
	)
	if err != nil {
		r.logger.Error("Failed to create user", zap.String("user_id", user.ID), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user by ID", zap.String("user_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListActiveByRole retrieves active users holding a role flag
func (r *UserRepository) ListActiveByRole(ctx context.Context, role workflow.Role) ([]*entity.User, error) {
	col, ok := roleColumns[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", workflow.ErrInvalidRole, role)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + col + ` = 1 AND is_active = 1 ORDER BY id`
	return r.list(ctx, query, string(role))
}

// ListDepartmentHeads retrieves active heads of a department
func (r *UserRepository) ListDepartmentHeads(ctx context.Context, departmentID string) ([]*entity.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE department_id = ? AND is_head = 1 AND is_active = 1
		ORDER BY id`
	return r.list(ctx, query, departmentID, departmentID)
}

func (r *UserRepository) list(ctx context.Context, query, label string, args ...interface{}) ([]*entity.User, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list users", zap.String("filter", label), zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// CreateDepartment creates a new department
func (r *UserRepository) CreateDepartment(ctx context.Context, dept *entity.Department) error {
	query := `INSERT INTO departments (id, name, parent_department_id) VALUES (?, ?, ?)`

	_, err := executor(ctx, r.db).ExecContext(ctx, query, dept.ID, dept.Name, nullableString(dept.ParentDepartmentID))
	if err != nil {
		r.logger.Error("Failed to create department", zap.String("department_id", dept.ID), zap.Error(err))
		return fmt.Errorf("failed to create department: %w", err)
	}
	return nil
}

// GetDepartment retrieves a department by ID
func (r *UserRepository) GetDepartment(ctx context.Context, id string) (*entity.Department, error) {
	query := `SELECT id, name, parent_department_id FROM departments WHERE id = ?`

	var (
		dept   entity.Department
		parent sql.NullString
	)
	err := executor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(&dept.ID, &dept.Name, &parent)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get department", zap.String("department_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get department: %w", err)
	}

	if parent.Valid && parent.String != "" {
		p := parent.String
		dept.ParentDepartmentID = &p
	}
	return &dept, nil
}

func scanUser(row rowScanner) (*entity.User, error) {
	var (
		user entity.User
		dept sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&dept,
		&user.IsHead,
		&user.IsAdmin,
		&user.IsComptroller,
		&user.IsHR,
		&user.IsVP,
		&user.IsPresident,
		&user.IsActive,
	)
	if err != nil {
		return nil, err
	}
	user.DepartmentID = dept.String
	return &user, nil
}

// Verify interface compliance
var _ port.UserRepository = (*UserRepository)(nil)
