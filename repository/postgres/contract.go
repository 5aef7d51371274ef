package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AnTengye/contractrisk/model"
	"github.com/AnTengye/contractrisk/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ service.ContractRepository = (*ContractRepo)(nil)

// Pool is what ContractRepo needs from a connection pool
type Pool interface {
	DBTX
	Beginner
}

// ContractRepo is a service.ContractRepository on PostgreSQL. Analysis
// writes run in one transaction each.
type ContractRepo struct {
	db Pool
}

func NewContractRepo(pool *pgxpool.Pool) *ContractRepo {
	return &ContractRepo{db: pool}
}

const contractColumns = `id, tenant, title, filename, file_key, uploaded_at, status,
	analyzed, analysis_date, contract_type, parties, duration, key_obligations,
	risk_level, extracted_text, ai_analysis`

func scanContract(row pgx.Row) (*model.Contract, error) {
	c := &model.Contract{}
	err := row.Scan(
		&c.ID, &c.Tenant, &c.Title, &c.Filename, &c.FileKey, &c.UploadedAt, &c.Status,
		&c.Analyzed, &c.AnalysisDate, &c.ContractType, &c.Parties, &c.Duration, &c.KeyObligations,
		&c.RiskLevel, &c.ExtractedText, &c.AIAnalysis,
	)
	return c, err
}

func (r *ContractRepo) Create(ctx context.Context, c *model.Contract) error {
	query := `
		INSERT INTO contracts (` + contractColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.Exec(ctx, query,
		c.ID, c.Tenant, c.Title, c.Filename, c.FileKey, c.UploadedAt, c.Status,
		c.Analyzed, c.AnalysisDate, c.ContractType, c.Parties, c.Duration, c.KeyObligations,
		c.RiskLevel, c.ExtractedText, c.AIAnalysis,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contract: %w", err)
	}
	return nil
}

// checkID rejects ids that cannot name a row before they reach a uuid column
func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.ContractNotFound(id)
	}
	return nil
}

func (r *ContractRepo) Get(ctx context.Context, id string) (*model.Contract, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1`

	c, err := scanContract(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ContractNotFound(id)
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return c, nil
}

// buildWhere turns a filter into a WHERE clause with numbered arguments
func buildWhere(filter model.ContractFilter, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filter.Tenant != "" {
		conditions = append(conditions, fmt.Sprintf("tenant = $%d", argNum))
		args = append(args, filter.Tenant)
		argNum++
	}
	if filter.ContractType != "" {
		conditions = append(conditions, fmt.Sprintf("contract_type = $%d", argNum))
		args = append(args, filter.ContractType)
		argNum++
	}
	if filter.RiskLevel != "" {
		conditions = append(conditions, fmt.Sprintf("risk_level = $%d", argNum))
		args = append(args, filter.RiskLevel)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func (r *ContractRepo) List(ctx context.Context, filter model.ContractFilter, limit, offset int) ([]*model.Contract, int, error) {
	where, args := buildWhere(filter, 1)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM contracts `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count contracts: %w", err)
	}

	argNum := len(args) + 1
	query := fmt.Sprintf(`
		SELECT %s FROM contracts
		%s
		ORDER BY uploaded_at DESC, id DESC
		OFFSET $%d`, contractColumns, where, argNum)
	args = append(args, offset)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum+1)
		args = append(args, limit)
	}

	contracts, err := r.queryContracts(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return contracts, total, nil
}

func (r *ContractRepo) queryContracts(ctx context.Context, query string, args ...any) ([]*model.Contract, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	result := []*model.Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// Delete removes the contract. Risk clauses and deadlines cascade.
func (r *ContractRepo) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM contracts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ContractNotFound(id)
	}
	return nil
}

func (r *ContractRepo) exists(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	var found bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM contracts WHERE id = $1)`, id).Scan(&found); err != nil {
		return fmt.Errorf("failed to check contract: %w", err)
	}
	if !found {
		return model.ContractNotFound(id)
	}
	return nil
}

func (r *ContractRepo) RiskClauses(ctx context.Context, contractID string) ([]model.RiskClause, error) {
	if err := r.exists(ctx, contractID); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, contract_id, clause_text, risk_description, severity, recommendation
		FROM risk_clauses
		WHERE contract_id = $1
		ORDER BY position`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk clauses: %w", err)
	}
	defer rows.Close()

	result := []model.RiskClause{}
	for rows.Next() {
		var rc model.RiskClause
		if err := rows.Scan(&rc.ID, &rc.ContractID, &rc.ClauseText, &rc.RiskDescription, &rc.Severity, &rc.Recommendation); err != nil {
			return nil, fmt.Errorf("failed to scan risk clause: %w", err)
		}
		result = append(result, rc)
	}
	return result, rows.Err()
}

func (r *ContractRepo) Deadlines(ctx context.Context, contractID string) ([]model.Deadline, error) {
	if err := r.exists(ctx, contractID); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, contract_id, description, date, days_notice
		FROM deadlines
		WHERE contract_id = $1
		ORDER BY date ASC NULLS LAST, position`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deadlines: %w", err)
	}
	defer rows.Close()

	result := []model.Deadline{}
	for rows.Next() {
		var d model.Deadline
		if err := rows.Scan(&d.ID, &d.ContractID, &d.Description, &d.Date, &d.DaysNotice); err != nil {
			return nil, fmt.Errorf("failed to scan deadline: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *ContractRepo) MarkAnalyzing(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE contracts SET status = $2 WHERE id = $1`, id, model.StatusAnalyzing)
	if err != nil {
		return fmt.Errorf("failed to update contract status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ContractNotFound(id)
	}
	return nil
}

// ResetAnalysis clears the analysis fields and deletes the children in one
// transaction. The contract type is kept.
func (r *ContractRepo) ResetAnalysis(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	return runInTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE contracts
			SET analyzed = FALSE, analysis_date = NULL, ai_analysis = '', parties = '',
				duration = '', key_obligations = '', risk_level = '', status = $2
			WHERE id = $1`, id, model.StatusAnalyzing)
		if err != nil {
			return fmt.Errorf("failed to reset contract: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return model.ContractNotFound(id)
		}
		return deleteChildren(ctx, tx, id)
	})
}

// SaveAnalysis replaces the analysis fields and children and marks the
// contract analyzed in one transaction.
func (r *ContractRepo) SaveAnalysis(ctx context.Context, id string, a *model.Analysis) error {
	if err := checkID(id); err != nil {
		return err
	}
	return runInTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE contracts
			SET contract_type = $2, parties = $3, duration = $4, key_obligations = $5,
				risk_level = $6, ai_analysis = $7, analyzed = TRUE, analysis_date = $8, status = $9
			WHERE id = $1`,
			id, a.ContractType, a.Parties, a.Duration, a.KeyObligations,
			a.RiskLevel, a.AIAnalysis, a.AnalyzedAt, model.StatusAnalyzed,
		)
		if err != nil {
			return fmt.Errorf("failed to save analysis: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return model.ContractNotFound(id)
		}

		if err := deleteChildren(ctx, tx, id); err != nil {
			return err
		}

		for i, rc := range a.RiskClauses {
			_, err := tx.Exec(ctx, `
				INSERT INTO risk_clauses (id, contract_id, position, clause_text, risk_description, severity, recommendation)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				uuid.New().String(), id, i, rc.ClauseText, rc.RiskDescription, rc.Severity, rc.Recommendation,
			)
			if err != nil {
				return fmt.Errorf("failed to insert risk clause: %w", err)
			}
		}
		for i, d := range a.Deadlines {
			_, err := tx.Exec(ctx, `
				INSERT INTO deadlines (id, contract_id, position, description, date, days_notice)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				uuid.New().String(), id, i, d.Description, d.Date, d.DaysNotice,
			)
			if err != nil {
				return fmt.Errorf("failed to insert deadline: %w", err)
			}
		}
		return nil
	})
}

func deleteChildren(ctx context.Context, tx pgx.Tx, id string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM risk_clauses WHERE contract_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete risk clauses: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM deadlines WHERE contract_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete deadlines: %w", err)
	}
	return nil
}

func (r *ContractRepo) Unfinished(ctx context.Context) ([]*model.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE NOT analyzed ORDER BY uploaded_at ASC`
	return r.queryContracts(ctx, query)
}

func (r *ContractRepo) Stats(ctx context.Context, tenant string) (*model.Stats, error) {
	stats := &model.Stats{}
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE analyzed),
			COUNT(*) FILTER (WHERE risk_level IN ($2, $3))
		FROM contracts
		WHERE tenant = $1`, tenant, model.RiskHigh, model.RiskCritical,
	).Scan(&stats.Total, &stats.Analyzed, &stats.HighRisk)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}

	recent, _, err := r.List(ctx, model.ContractFilter{Tenant: tenant}, model.RecentLimit, 0)
	if err != nil {
		return nil, err
	}
	stats.Recent = recent
	return stats, nil
}
