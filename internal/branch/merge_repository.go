package branch

import (
	"database/sql"
	"fmt"

	"github.com/brioproj/brio/internal/domain"
)

const mergeRequestColumns = "id, branch_id, parent_id, strategy_name, status, requires_approval, approver, staging_session_id, created_at, started_at, completed_at"

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func scanMergeRequest(scan func(dest ...any) error) (domain.MergeRequest, error) {
	var (
		id, branchID, strategyName, status, approver, stagingSessionID string
		parentID                                                      sql.NullString
		requiresApproval                                               bool
		createdAt                                                      int64
		startedAt, completedAt                                        sql.NullInt64
	)
	if err := scan(&id, &branchID, &parentID, &strategyName, &status, &requiresApproval, &approver,
		&stagingSessionID, &createdAt, &startedAt, &completedAt); err != nil {
		return domain.MergeRequest{}, err
	}

	mrID, err := domain.ParseBranchId(id)
	if err != nil {
		return domain.MergeRequest{}, fmt.Errorf("branch: parse merge request id: %w", err)
	}
	bID, err := domain.ParseBranchId(branchID)
	if err != nil {
		return domain.MergeRequest{}, fmt.Errorf("branch: parse merge request branch_id: %w", err)
	}
	parsedParent, err := parseNullableParentID(parentID)
	if err != nil {
		return domain.MergeRequest{}, fmt.Errorf("branch: parse merge request parent_id: %w", err)
	}

	mr := domain.MergeRequest{
		ID:               mrID,
		BranchID:         bID,
		ParentID:         parsedParent,
		StrategyName:     strategyName,
		Status:           domain.MergeRequestStatus(status),
		RequiresApproval: requiresApproval,
		Approver:         approver,
		StagingSessionID: domain.SessionId(stagingSessionID),
		CreatedAt:        createdAt,
	}
	if startedAt.Valid {
		mr.StartedAt = &startedAt.Int64
	}
	if completedAt.Valid {
		mr.CompletedAt = &completedAt.Int64
	}
	return mr, nil
}

// CreateMergeRequest persists a new merge request (spec.md §4.8 merge).
func (r *SQLiteRepository) CreateMergeRequest(mr domain.MergeRequest) error {
	return r.db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO merge_requests (id, branch_id, parent_id, strategy_name, status, requires_approval,
				approver, staging_session_id, created_at, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			mr.ID.String(), mr.BranchID.String(), nullableParentID(mr.ParentID), mr.StrategyName, mr.Status.String(),
			mr.RequiresApproval, mr.Approver, mr.StagingSessionID.String(), mr.CreatedAt,
			nullableInt64(mr.StartedAt), nullableInt64(mr.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("branch: insert merge request %s: %w", mr.ID, err)
		}
		return nil
	})
}

// GetMergeRequest fetches a merge request by id.
func (r *SQLiteRepository) GetMergeRequest(id domain.BranchId) (domain.MergeRequest, error) {
	row := r.db.queryRow(fmt.Sprintf("SELECT %s FROM merge_requests WHERE id = ?", mergeRequestColumns), id.String())
	mr, err := scanMergeRequest(row.Scan)
	if err == sql.ErrNoRows {
		return domain.MergeRequest{}, &domain.NotFoundError{Kind: "merge_request", ID: id.String()}
	}
	if err != nil {
		return domain.MergeRequest{}, err
	}
	return mr, nil
}

// UpdateMergeRequestStatus fetches the current merge request, validates the
// transition against the wire lifecycle, and persists the new status plus
// any started_at/completed_at stamps atomically.
func (r *SQLiteRepository) UpdateMergeRequestStatus(id domain.BranchId, to domain.MergeRequestStatus, startedAt, completedAt *int64) error {
	return r.db.Transaction(func(tx *sql.Tx) error {
		row := tx.QueryRow(fmt.Sprintf("SELECT %s FROM merge_requests WHERE id = ?", mergeRequestColumns), id.String())
		current, err := scanMergeRequest(row.Scan)
		if err == sql.ErrNoRows {
			return &domain.NotFoundError{Kind: "merge_request", ID: id.String()}
		}
		if err != nil {
			return err
		}
		if err := domain.ValidateMergeRequestTransition(current.Status, to); err != nil {
			return err
		}

		effectiveStarted := current.StartedAt
		if startedAt != nil {
			effectiveStarted = startedAt
		}
		effectiveCompleted := current.CompletedAt
		if completedAt != nil {
			effectiveCompleted = completedAt
		}

		if _, err := tx.Exec(
			"UPDATE merge_requests SET status = ?, started_at = ?, completed_at = ? WHERE id = ?",
			to.String(), nullableInt64(effectiveStarted), nullableInt64(effectiveCompleted), id.String(),
		); err != nil {
			return fmt.Errorf("branch: update merge request status for %s: %w", id, err)
		}
		return nil
	})
}

// ApproveMerge records the approver on a Pending merge request and
// transitions it to Approved (spec.md §4.5 approve_merge).
func (r *SQLiteRepository) ApproveMerge(id domain.BranchId, approver string) error {
	if approver == "" {
		return &domain.ValidationError{Field: "approver", Reason: "must not be empty"}
	}
	return r.db.Transaction(func(tx *sql.Tx) error {
		row := tx.QueryRow(fmt.Sprintf("SELECT %s FROM merge_requests WHERE id = ?", mergeRequestColumns), id.String())
		current, err := scanMergeRequest(row.Scan)
		if err == sql.ErrNoRows {
			return &domain.NotFoundError{Kind: "merge_request", ID: id.String()}
		}
		if err != nil {
			return err
		}
		if err := domain.ValidateMergeRequestTransition(current.Status, domain.MergeReqApproved); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"UPDATE merge_requests SET status = ?, approver = ? WHERE id = ?",
			domain.MergeReqApproved.String(), approver, id.String(),
		); err != nil {
			return fmt.Errorf("branch: approve merge request %s: %w", id, err)
		}
		return nil
	})
}

// DeleteMergeRequest removes a merge request record.
func (r *SQLiteRepository) DeleteMergeRequest(id domain.BranchId) error {
	return r.db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM merge_requests WHERE id = ?", id.String())
		if err != nil {
			return fmt.Errorf("branch: delete merge request %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &domain.NotFoundError{Kind: "merge_request", ID: id.String()}
		}
		return nil
	})
}
