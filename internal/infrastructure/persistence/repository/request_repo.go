package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/travel-approval/internal/application/port"
	"github.com/garyjia/travel-approval/internal/domain/entity"
	"github.com/garyjia/travel-approval/internal/domain/workflow"
)

// stageColumns names the audit columns a stage owns on the requests table.
// Admin and comptroller have no signature column.
type stageColumns struct {
	at        string
	by        string
	signature string
	comments  string
}

var stageOrder = []workflow.Stage{
	workflow.StageHead,
	workflow.StageParentHead,
	workflow.StageAdmin,
	workflow.StageComptroller,
	workflow.StageHR,
	workflow.StageVP,
	workflow.StagePresident,
}

var columnsByStage = map[workflow.Stage]stageColumns{
	workflow.StageHead:        {"head_approved_at", "head_approved_by", "head_signature", "head_comments"},
	workflow.StageParentHead:  {"parent_head_approved_at", "parent_head_approved_by", "parent_head_signature", "parent_head_comments"},
	workflow.StageAdmin:       {"admin_processed_at", "admin_processed_by", "", "admin_comments"},
	workflow.StageComptroller: {"comptroller_approved_at", "comptroller_approved_by", "", "comptroller_comments"},
	workflow.StageHR:          {"hr_approved_at", "hr_approved_by", "hr_signature", "hr_comments"},
	workflow.StageVP:          {"vp_approved_at", "vp_approved_by", "vp_signature", "vp_comments"},
	workflow.StagePresident:   {"president_approved_at", "president_approved_by", "president_signature", "president_comments"},
}

var requestColumns = buildRequestColumns()

func buildRequestColumns() string {
	cols := []string{
		"id", "request_number", "request_type", "requester_id", "requester_name",
		"requester_is_head", "department_id", "parent_department_id",
		"has_budget", "total_budget", "comptroller_edited_budget", "expense_breakdown", "status",
	}
	for _, stage := range stageOrder {
		c := columnsByStage[stage]
		cols = append(cols, c.at, c.by)
		if c.signature != "" {
			cols = append(cols, c.signature)
		}
		cols = append(cols, c.comments)
	}
	cols = append(cols,
		"rejected_at", "rejected_by", "rejection_reason", "rejection_stage",
		"returned_at", "returned_by", "return_reason", "return_stage",
		"workflow_metadata", "created_at", "updated_at",
	)
	return strings.Join(cols, ", ")
}

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new request. Stage audit columns start empty.
func (r *RequestRepository) Create(ctx context.Context, req *entity.Request) error {
	query := `
		INSERT INTO requests (
			request_number, request_type, requester_id, requester_name, requester_is_head,
			department_id, parent_department_id, has_budget, total_budget,
			expense_breakdown, status, workflow_metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	breakdown, err := json.Marshal(nonNilItems(req.ExpenseBreakdown))
	if err != nil {
		return fmt.Errorf("failed to encode expense breakdown: %w", err)
	}
	metadata, err := json.Marshal(nonNilMetadata(req.WorkflowMetadata))
	if err != nil {
		return fmt.Errorf("failed to encode workflow metadata: %w", err)
	}

	now := time.Now()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	if req.Status == "" {
		req.Status = workflow.StateDraft
	}

	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		req.RequestNumber,
		req.RequestType,
		req.RequesterID,
		req.RequesterName,
		req.RequesterIsHead,
		req.DepartmentID,
		nullableString(req.ParentDepartmentID),
		req.HasBudget,
		req.TotalBudget,
		string(breakdown),
		string(req.Status),
		string(metadata),
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create request",
			zap.String("request_number", req.RequestNumber),
			zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	req.ID = id
	return nil
}

// GetByID retrieves a request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*entity.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = ?`

	req, err := scanRequest(executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// ListByStatus retrieves requests in a status, oldest first
func (r *RequestRepository) ListByStatus(ctx context.Context, status workflow.State, limit, offset int) ([]*entity.Request, error) {
	query := `SELECT ` + requestColumns + `
		FROM requests
		WHERE status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?`

	rows, err := executor(ctx, r.db).QueryContext(ctx, query, string(status), limit, offset)
	if err != nil {
		r.logger.Error("Failed to list requests by status", zap.String("status", string(status)), zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

// ApplyDecision performs the conditional single-row update for one decision.
// The WHERE clause re-checks the status and the stage timestamp so a competing
// decision that committed first leaves zero rows affected.
func (r *RequestRepository) ApplyDecision(ctx context.Context, u *port.DecisionUpdate) (bool, error) {
	cols, ok := columnsByStage[u.Stage]
	if !ok {
		return false, fmt.Errorf("unknown stage %q", u.Stage)
	}

	query, args := buildDecisionUpdate(cols, u)

	result, err := executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to apply decision",
			zap.Int64("request_id", u.RequestID),
			zap.String("stage", string(u.Stage)),
			zap.Error(err))
		return false, fmt.Errorf("failed to apply decision: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

func buildDecisionUpdate(cols stageColumns, u *port.DecisionUpdate) (string, []interface{}) {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{string(u.NewStatus), u.UpdatedAt}

	set := func(col string, v interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if a := u.Approval; a != nil {
		at := u.UpdatedAt
		if a.At != nil {
			at = *a.At
		}
		set(cols.at, at)
		set(cols.by, a.By)
		if cols.signature != "" && a.Signature != "" {
			set(cols.signature, a.Signature)
		}
		if a.Comments != "" {
			set(cols.comments, a.Comments)
		}
	}
	if u.EditedBudget.Valid {
		set("comptroller_edited_budget", u.EditedBudget)
	}
	if u.StageComments != "" {
		set(cols.comments, u.StageComments)
	}
	if c := u.Rejection; c != nil {
		set("rejected_at", c.At)
		set("rejected_by", c.By)
		set("rejection_reason", c.Reason)
		set("rejection_stage", c.Stage)
	}
	if c := u.Return; c != nil {
		set("returned_at", c.At)
		set("returned_by", c.By)
		set("return_reason", c.Reason)
		set("return_stage", c.Stage)
	}

	query := "UPDATE requests SET " + strings.Join(sets, ", ") +
		" WHERE id = ? AND status = ? AND " + cols.at + " IS NULL"
	args = append(args, u.RequestID, string(u.ExpectedStatus))
	return query, args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type auditScan struct {
	at        sql.NullTime
	by        sql.NullString
	signature sql.NullString
	comments  sql.NullString
}

func (a *auditScan) audit() entity.StageAudit {
	out := entity.StageAudit{
		By:        a.by.String,
		Signature: a.signature.String,
		Comments:  a.comments.String,
	}
	if a.at.Valid {
		t := a.at.Time
		out.At = &t
	}
	return out
}

func scanRequest(row rowScanner) (*entity.Request, error) {
	var (
		req         entity.Request
		status      string
		parentDept  sql.NullString
		breakdown   sql.NullString
		metadata    sql.NullString
		rejectedAt  sql.NullTime
		rejectedBy  sql.NullString
		rejReason   sql.NullString
		rejStage    sql.NullString
		returnedAt  sql.NullTime
		returnedBy  sql.NullString
		retReason   sql.NullString
		retStage    sql.NullString
		audits      = make(map[workflow.Stage]*auditScan, len(stageOrder))
		destination = []interface{}{
			&req.ID, &req.RequestNumber, &req.RequestType, &req.RequesterID, &req.RequesterName,
			&req.RequesterIsHead, &req.DepartmentID, &parentDept,
			&req.HasBudget, &req.TotalBudget, &req.ComptrollerEditedBudget, &breakdown, &status,
		}
	)

	for _, stage := range stageOrder {
		a := &auditScan{}
		audits[stage] = a
		destination = append(destination, &a.at, &a.by)
		if columnsByStage[stage].signature != "" {
			destination = append(destination, &a.signature)
		}
		destination = append(destination, &a.comments)
	}
	destination = append(destination,
		&rejectedAt, &rejectedBy, &rejReason, &rejStage,
		&returnedAt, &returnedBy, &retReason, &retStage,
		&metadata, &req.CreatedAt, &req.UpdatedAt,
	)

	if err := row.Scan(destination...); err != nil {
		return nil, err
	}

	req.Status = workflow.State(status)
	if parentDept.Valid && parentDept.String != "" {
		p := parentDept.String
		req.ParentDepartmentID = &p
	}
	for stage, a := range audits {
		*req.Audit(stage) = a.audit()
	}

	if rejectedAt.Valid {
		t := rejectedAt.Time
		req.RejectedAt = &t
	}
	req.RejectedBy, req.RejectionReason, req.RejectionStage = rejectedBy.String, rejReason.String, rejStage.String
	if returnedAt.Valid {
		t := returnedAt.Time
		req.ReturnedAt = &t
	}
	req.ReturnedBy, req.ReturnReason, req.ReturnStage = returnedBy.String, retReason.String, retStage.String

	if breakdown.Valid && breakdown.String != "" {
		if err := json.Unmarshal([]byte(breakdown.String), &req.ExpenseBreakdown); err != nil {
			return nil, fmt.Errorf("failed to decode expense breakdown: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &req.WorkflowMetadata); err != nil {
			return nil, fmt.Errorf("failed to decode workflow metadata: %w", err)
		}
	}

	return &req, nil
}

func nonNilItems(items []entity.ExpenseItem) []entity.ExpenseItem {
	if items == nil {
		return []entity.ExpenseItem{}
	}
	return items
}

func nonNilMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func nullableString(s *string) interface{} {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
