package branch

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/brioproj/brio/internal/domain"
)

// Repository is the abstract persistence contract for branches and merge
// requests (spec.md §4.5). Every multi-step update is wrapped in a
// transaction with auto-rollback on error.
type Repository interface {
	CreateBranch(b domain.Branch) error
	GetBranch(id domain.BranchId) (domain.Branch, error)
	UpdateBranchStatus(id domain.BranchId, to domain.BranchStatus, completedAt *time.Time) error
	// ResetActiveToPending demotes an Active branch back to Pending,
	// bypassing the normal transition table. Used only by crash recovery
	// (spec.md §4.8 recover): a killed process may leave a branch Active
	// with no executor actually running, so the ordinary transition rules
	// (which forbid Active -> Pending) don't apply here.
	ResetActiveToPending(id domain.BranchId) error
	ListActiveBranches() ([]domain.Branch, error)
	ListBranchesByParent(parentID domain.BranchId) ([]domain.Branch, error)
	DeleteBranch(id domain.BranchId) error

	CreateMergeRequest(mr domain.MergeRequest) error
	GetMergeRequest(id domain.BranchId) (domain.MergeRequest, error)
	UpdateMergeRequestStatus(id domain.BranchId, to domain.MergeRequestStatus, startedAt, completedAt *int64) error
	ApproveMerge(id domain.BranchId, approver string) error
	DeleteMergeRequest(id domain.BranchId) error
}

// SQLiteRepository is the modernc.org/sqlite-backed Repository
// implementation.
type SQLiteRepository struct {
	db *DB
}

// NewSQLiteRepository wraps an already-migrated DB.
func NewSQLiteRepository(db *DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func formatNullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableParentID(id *domain.BranchId) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseNullableParentID(s sql.NullString) (*domain.BranchId, error) {
	if !s.Valid {
		return nil, nil
	}
	id, err := domain.ParseBranchId(s.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// CreateBranch persists a new branch record. The caller is expected to have
// already validated b (spec.md §4.8 create_branch).
func (r *SQLiteRepository) CreateBranch(b domain.Branch) error {
	return r.db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO branches (id, parent_id, name, session_id, status, created_at, completed_at, config_blob)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			b.ID.String(), nullableParentID(b.ParentID), b.Name, b.SessionID.String(), b.Status.String(),
			formatTime(b.CreatedAt), formatNullableTime(b.CompletedAt), b.ConfigBlob,
		)
		if err != nil {
			return fmt.Errorf("branch: insert branch %s: %w", b.ID, err)
		}
		return nil
	})
}

func scanBranch(scan func(dest ...any) error) (domain.Branch, error) {
	var (
		id, name, sessionID, status, createdAt string
		parentID, completedAt                  sql.NullString
		configBlob                             []byte
	)
	if err := scan(&id, &parentID, &name, &sessionID, &status, &createdAt, &completedAt, &configBlob); err != nil {
		return domain.Branch{}, err
	}

	branchID, err := domain.ParseBranchId(id)
	if err != nil {
		return domain.Branch{}, fmt.Errorf("branch: parse id: %w", err)
	}
	parsedParent, err := parseNullableParentID(parentID)
	if err != nil {
		return domain.Branch{}, fmt.Errorf("branch: parse parent_id: %w", err)
	}
	createdAtT, err := parseTime(createdAt)
	if err != nil {
		return domain.Branch{}, fmt.Errorf("branch: parse created_at: %w", err)
	}
	completedAtT, err := parseNullableTime(completedAt)
	if err != nil {
		return domain.Branch{}, fmt.Errorf("branch: parse completed_at: %w", err)
	}

	return domain.Branch{
		ID:          branchID,
		ParentID:    parsedParent,
		Name:        name,
		SessionID:   domain.SessionId(sessionID),
		Status:      domain.BranchStatus(status),
		CreatedAt:   createdAtT,
		CompletedAt: completedAtT,
		ConfigBlob:  configBlob,
	}, nil
}

const branchColumns = "id, parent_id, name, session_id, status, created_at, completed_at, config_blob"

// GetBranch fetches a branch by id.
func (r *SQLiteRepository) GetBranch(id domain.BranchId) (domain.Branch, error) {
	row := r.db.queryRow(fmt.Sprintf("SELECT %s FROM branches WHERE id = ?", branchColumns), id.String())
	b, err := scanBranch(row.Scan)
	if err == sql.ErrNoRows {
		return domain.Branch{}, &domain.NotFoundError{Kind: "branch", ID: id.String()}
	}
	if err != nil {
		return domain.Branch{}, err
	}
	return b, nil
}

// UpdateBranchStatus fetches the current branch, validates the transition,
// and persists the new status atomically (spec.md §4.6 update_status).
func (r *SQLiteRepository) UpdateBranchStatus(id domain.BranchId, to domain.BranchStatus, completedAt *time.Time) error {
	return r.db.Transaction(func(tx *sql.Tx) error {
		row := tx.QueryRow(fmt.Sprintf("SELECT %s FROM branches WHERE id = ?", branchColumns), id.String())
		current, err := scanBranch(row.Scan)
		if err == sql.ErrNoRows {
			return &domain.NotFoundError{Kind: "branch", ID: id.String()}
		}
		if err != nil {
			return err
		}
		if err := domain.ValidateStatusTransition(current.Status, to); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"UPDATE branches SET status = ?, completed_at = ? WHERE id = ?",
			to.String(), formatNullableTime(completedAt), id.String(),
		); err != nil {
			return fmt.Errorf("branch: update status for %s: %w", id, err)
		}
		return nil
	})
}

// ResetActiveToPending implements the Repository method of the same name.
func (r *SQLiteRepository) ResetActiveToPending(id domain.BranchId) error {
	return r.db.Transaction(func(tx *sql.Tx) error {
		row := tx.QueryRow(fmt.Sprintf("SELECT %s FROM branches WHERE id = ?", branchColumns), id.String())
		current, err := scanBranch(row.Scan)
		if err == sql.ErrNoRows {
			return &domain.NotFoundError{Kind: "branch", ID: id.String()}
		}
		if err != nil {
			return err
		}
		if current.Status != domain.BranchActive {
			return nil
		}
		if _, err := tx.Exec("UPDATE branches SET status = ? WHERE id = ?", domain.BranchPending.String(), id.String()); err != nil {
			return fmt.Errorf("branch: reset %s to pending: %w", id, err)
		}
		return nil
	})
}

// ListActiveBranches returns every non-terminal branch (spec.md §4.5).
func (r *SQLiteRepository) ListActiveBranches() ([]domain.Branch, error) {
	rows, err := r.db.query(fmt.Sprintf(
		"SELECT %s FROM branches WHERE status NOT IN (?, ?) ORDER BY created_at ASC", branchColumns,
	), domain.BranchMerged.String(), domain.BranchFailed.String())
	if err != nil {
		return nil, fmt.Errorf("branch: list active branches: %w", err)
	}
	defer rows.Close()
	return scanBranches(rows)
}

// ListBranchesByParent returns every branch whose parent is parentID.
func (r *SQLiteRepository) ListBranchesByParent(parentID domain.BranchId) ([]domain.Branch, error) {
	rows, err := r.db.query(fmt.Sprintf(
		"SELECT %s FROM branches WHERE parent_id = ? ORDER BY created_at ASC", branchColumns,
	), parentID.String())
	if err != nil {
		return nil, fmt.Errorf("branch: list branches by parent: %w", err)
	}
	defer rows.Close()
	return scanBranches(rows)
}

func scanBranches(rows *sql.Rows) ([]domain.Branch, error) {
	var out []domain.Branch
	for rows.Next() {
		b, err := scanBranch(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBranch removes a branch record.
func (r *SQLiteRepository) DeleteBranch(id domain.BranchId) error {
	return r.db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM branches WHERE id = ?", id.String())
		if err != nil {
			return fmt.Errorf("branch: delete branch %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &domain.NotFoundError{Kind: "branch", ID: id.String()}
		}
		return nil
	})
}
