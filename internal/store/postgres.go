package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-optimizer/internal/db"
	"github.com/sells-group/contract-optimizer/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_contract":          `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1 AND user_id = $2`,
	"delete_contract":       `DELETE FROM contracts WHERE id = $1 AND user_id = $2`,
	"list_contract_files":   `SELECT ` + contractFileColumns + ` FROM contract_files WHERE contract_id = $1 AND user_id = $2 ORDER BY display_order ASC, created_at ASC`,
	"get_recommendation":    `SELECT ` + recommendationColumns + ` FROM recommendations WHERE id = $1 AND user_id = $2`,
	"analyzed_contract_ids": `SELECT DISTINCT contract_id FROM recommendations WHERE user_id = $1 AND contract_id IS NOT NULL`,
}

const contractColumns = `id, user_id, provider_name, contract_nickname, contract_type, monthly_cost, annual_cost, currency, payment_frequency, start_date, end_date, auto_renewal, cancellation_notice_days, key_terms, parties, risks, extraction_confidence, user_verified, created_at, updated_at`

const contractFileColumns = `id, contract_id, user_id, file_path, file_name, file_size, file_label, document_type, display_order, created_at`

const recommendationColumns = `id, user_id, contract_id, type, title, description, estimated_savings, priority, status, reasoning, confidence, created_at, acted_on_at`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contracts (
	id                       TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id                  TEXT NOT NULL,
	provider_name            TEXT NOT NULL DEFAULT '',
	contract_nickname        TEXT NOT NULL DEFAULT '',
	contract_type            TEXT,
	monthly_cost             DOUBLE PRECISION,
	annual_cost              DOUBLE PRECISION,
	currency                 TEXT NOT NULL DEFAULT 'USD',
	payment_frequency        TEXT,
	start_date               TEXT,
	end_date                 TEXT,
	auto_renewal             BOOLEAN,
	cancellation_notice_days INTEGER,
	key_terms                JSONB NOT NULL DEFAULT '[]',
	parties                  JSONB NOT NULL DEFAULT '[]',
	risks                    JSONB NOT NULL DEFAULT '[]',
	extraction_confidence    DOUBLE PRECISION,
	user_verified            BOOLEAN NOT NULL DEFAULT false,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contract_files (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	contract_id   TEXT NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
	user_id       TEXT NOT NULL,
	file_path     TEXT NOT NULL,
	file_name     TEXT NOT NULL,
	file_size     BIGINT NOT NULL DEFAULT 0,
	file_label    TEXT NOT NULL DEFAULT '',
	document_type TEXT NOT NULL DEFAULT 'other',
	display_order INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS recommendations (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id           TEXT NOT NULL,
	contract_id       TEXT REFERENCES contracts(id) ON DELETE SET NULL,
	type              TEXT NOT NULL,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	estimated_savings DOUBLE PRECISION,
	priority          TEXT NOT NULL DEFAULT 'medium',
	status            TEXT NOT NULL DEFAULT 'pending',
	reasoning         TEXT NOT NULL DEFAULT '',
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	acted_on_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_contracts_user_id ON contracts(user_id);
CREATE INDEX IF NOT EXISTS idx_contracts_user_type ON contracts(user_id, contract_type);
CREATE INDEX IF NOT EXISTS idx_contract_files_contract_id ON contract_files(contract_id);
CREATE INDEX IF NOT EXISTS idx_recommendations_user_id ON recommendations(user_id);
CREATE INDEX IF NOT EXISTS idx_recommendations_user_status ON recommendations(user_id, status);
CREATE INDEX IF NOT EXISTS idx_recommendations_contract_id ON recommendations(contract_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateContract(ctx context.Context, c model.Contract) (*model.Contract, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Currency == "" {
		c.Currency = "USD"
	}

	keyTerms, parties, risks, err := marshalContractJSON(c)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO contracts (`+contractColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		c.ID, c.UserID, c.ProviderName, c.Nickname, enumPtr(c.ContractType), c.MonthlyCost, c.AnnualCost,
		c.Currency, enumPtr(c.PaymentFrequency), c.StartDate, c.EndDate, c.AutoRenewal, c.CancellationNoticeDays,
		keyTerms, parties, risks, c.ExtractionConfidence, c.UserVerified, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert contract")
	}

	// Files are inserted in the same call so confirm-time creation is one
	// store operation from the caller's perspective.
	for i := range c.Files {
		f := &c.Files[i]
		f.ContractID = c.ID
		f.UserID = c.UserID
		created, err := s.AddContractFile(ctx, *f)
		if err != nil {
			return nil, err
		}
		*f = *created
	}
	return &c, nil
}

func (s *PostgresStore) GetContract(ctx context.Context, userID, contractID string) (*model.Contract, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE id = $1 AND user_id = $2`,
		contractID, userID,
	)
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "contract %s", contractID)
		}
		return nil, eris.Wrapf(err, "postgres: get contract %s", contractID)
	}

	files, err := s.ListContractFiles(ctx, userID, contractID)
	if err != nil {
		return nil, err
	}
	c.Files = files
	return c, nil
}

func (s *PostgresStore) ListContracts(ctx context.Context, userID string, filter ContractFilter) ([]model.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if filter.ContractType != "" {
		query += fmt.Sprintf(` AND contract_type = $%d`, argIdx)
		args = append(args, string(filter.ContractType))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contracts")
	}
	defer rows.Close()

	var contracts []model.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan contract")
		}
		contracts = append(contracts, *c)
	}
	return contracts, eris.Wrap(rows.Err(), "postgres: list contracts iterate")
}

func (s *PostgresStore) UpdateContract(ctx context.Context, c model.Contract) (*model.Contract, error) {
	c.UpdatedAt = time.Now().UTC()

	keyTerms, parties, risks, err := marshalContractJSON(c)
	if err != nil {
		return nil, err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE contracts SET
		   provider_name = $1, contract_nickname = $2, contract_type = $3, monthly_cost = $4,
		   annual_cost = $5, currency = $6, payment_frequency = $7, start_date = $8, end_date = $9,
		   auto_renewal = $10, cancellation_notice_days = $11, key_terms = $12, parties = $13,
		   risks = $14, extraction_confidence = $15, user_verified = $16, updated_at = $17
		 WHERE id = $18 AND user_id = $19`,
		c.ProviderName, c.Nickname, enumPtr(c.ContractType), c.MonthlyCost, c.AnnualCost,
		c.Currency, enumPtr(c.PaymentFrequency), c.StartDate, c.EndDate, c.AutoRenewal,
		c.CancellationNoticeDays, keyTerms, parties, risks, c.ExtractionConfidence,
		c.UserVerified, c.UpdatedAt, c.ID, c.UserID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update contract %s", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "contract %s", c.ID)
	}
	return &c, nil
}

func (s *PostgresStore) DeleteContract(ctx context.Context, userID, contractID string) error {
	// File rows go with the contract via ON DELETE CASCADE.
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM contracts WHERE id = $1 AND user_id = $2`,
		contractID, userID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete contract %s", contractID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "contract %s", contractID)
	}
	return nil
}

func (s *PostgresStore) AddContractFile(ctx context.Context, f model.ContractFile) (*model.ContractFile, error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.CreatedAt = time.Now().UTC()
	if f.DocumentType == "" {
		f.DocumentType = model.DocOther
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO contract_files (`+contractFileColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		f.ID, f.ContractID, f.UserID, f.Path, f.Name, f.Size, f.Label,
		string(f.DocumentType), f.DisplayOrder, f.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert contract file for %s", f.ContractID)
	}
	return &f, nil
}

func (s *PostgresStore) ListContractFiles(ctx context.Context, userID, contractID string) ([]model.ContractFile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contractFileColumns+` FROM contract_files
		 WHERE contract_id = $1 AND user_id = $2
		 ORDER BY display_order ASC, created_at ASC`,
		contractID, userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contract files")
	}
	defer rows.Close()

	var files []model.ContractFile
	for rows.Next() {
		var f model.ContractFile
		var docType string
		if err := rows.Scan(&f.ID, &f.ContractID, &f.UserID, &f.Path, &f.Name, &f.Size,
			&f.Label, &docType, &f.DisplayOrder, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contract file")
		}
		f.DocumentType = model.DocumentType(docType)
		files = append(files, f)
	}
	return files, eris.Wrap(rows.Err(), "postgres: list contract files iterate")
}

func (s *PostgresStore) CreateRecommendations(ctx context.Context, recs []model.Recommendation) ([]model.Recommendation, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	created := make([]model.Recommendation, 0, len(recs))
	now := time.Now().UTC()
	for _, r := range recs {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.Status == "" {
			r.Status = model.StatusPending
		}
		r.CreatedAt = now

		_, err := tx.Exec(ctx,
			`INSERT INTO recommendations (`+recommendationColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			r.ID, r.UserID, r.ContractID, string(r.Type), r.Title, r.Description,
			r.EstimatedSavings, string(r.Priority), string(r.Status), r.Reasoning,
			r.Confidence, r.CreatedAt, r.ActedOnAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: insert recommendation")
		}
		created = append(created, r)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit recommendations")
	}
	return created, nil
}

func (s *PostgresStore) ListRecommendations(ctx context.Context, userID string, filter RecommendationFilter) ([]model.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + ` FROM recommendations WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Priority != "" {
		query += fmt.Sprintf(` AND priority = $%d`, argIdx)
		args = append(args, string(filter.Priority))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recommendations")
	}
	defer rows.Close()

	var recs []model.Recommendation
	for rows.Next() {
		r, err := scanRecommendation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan recommendation")
		}
		recs = append(recs, *r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list recommendations iterate")
}

func (s *PostgresStore) GetRecommendation(ctx context.Context, userID, recID string) (*model.Recommendation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE id = $1 AND user_id = $2`,
		recID, userID,
	)
	r, err := scanRecommendation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "recommendation %s", recID)
		}
		return nil, eris.Wrapf(err, "postgres: get recommendation %s", recID)
	}
	return r, nil
}

func (s *PostgresStore) UpdateRecommendationStatus(ctx context.Context, userID, recID string, status model.RecommendationStatus) (*model.Recommendation, error) {
	var actedOnAt *time.Time
	if status == model.StatusAccepted || status == model.StatusDismissed {
		now := time.Now().UTC()
		actedOnAt = &now
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE recommendations SET status = $1, acted_on_at = COALESCE($2, acted_on_at)
		 WHERE id = $3 AND user_id = $4`,
		string(status), actedOnAt, recID, userID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update recommendation status %s", recID)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "recommendation %s", recID)
	}
	return s.GetRecommendation(ctx, userID, recID)
}

func (s *PostgresStore) AnalyzedContractIDs(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT contract_id FROM recommendations WHERE user_id = $1 AND contract_id IS NOT NULL`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: analyzed contract ids")
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analyzed contract id")
		}
		ids[id] = true
	}
	return ids, eris.Wrap(rows.Err(), "postgres: analyzed contract ids iterate")
}

// enumPtr converts a pointer to a named string type into a plain *string
// for the driver.
func enumPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func marshalContractJSON(c model.Contract) (keyTerms, parties, risks []byte, err error) {
	if c.KeyTerms == nil {
		c.KeyTerms = []string{}
	}
	if keyTerms, err = json.Marshal(c.KeyTerms); err != nil {
		return nil, nil, nil, eris.Wrap(err, "postgres: marshal key terms")
	}
	if c.Parties == nil {
		c.Parties = []model.Party{}
	}
	if parties, err = json.Marshal(c.Parties); err != nil {
		return nil, nil, nil, eris.Wrap(err, "postgres: marshal parties")
	}
	if c.Risks == nil {
		c.Risks = []model.Risk{}
	}
	if risks, err = json.Marshal(c.Risks); err != nil {
		return nil, nil, nil, eris.Wrap(err, "postgres: marshal risks")
	}
	return keyTerms, parties, risks, nil
}

func scanContract(row pgx.Row) (*model.Contract, error) {
	var c model.Contract
	var contractType, paymentFrequency *string
	var keyTermsJSON, partiesJSON, risksJSON []byte

	err := row.Scan(&c.ID, &c.UserID, &c.ProviderName, &c.Nickname, &contractType,
		&c.MonthlyCost, &c.AnnualCost, &c.Currency, &paymentFrequency, &c.StartDate,
		&c.EndDate, &c.AutoRenewal, &c.CancellationNoticeDays, &keyTermsJSON,
		&partiesJSON, &risksJSON, &c.ExtractionConfidence, &c.UserVerified,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if contractType != nil {
		ct := model.ContractType(*contractType)
		c.ContractType = &ct
	}
	if paymentFrequency != nil {
		pf := model.PaymentFrequency(*paymentFrequency)
		c.PaymentFrequency = &pf
	}
	if err := json.Unmarshal(keyTermsJSON, &c.KeyTerms); err != nil {
		return nil, eris.Wrap(err, "unmarshal key terms")
	}
	if err := json.Unmarshal(partiesJSON, &c.Parties); err != nil {
		return nil, eris.Wrap(err, "unmarshal parties")
	}
	if err := json.Unmarshal(risksJSON, &c.Risks); err != nil {
		return nil, eris.Wrap(err, "unmarshal risks")
	}
	return &c, nil
}

func scanRecommendation(row pgx.Row) (*model.Recommendation, error) {
	var r model.Recommendation
	var recType, priority, status string

	err := row.Scan(&r.ID, &r.UserID, &r.ContractID, &recType, &r.Title, &r.Description,
		&r.EstimatedSavings, &priority, &status, &r.Reasoning, &r.Confidence,
		&r.CreatedAt, &r.ActedOnAt)
	if err != nil {
		return nil, err
	}

	r.Type = model.RecommendationType(recType)
	r.Priority = model.Priority(priority)
	r.Status = model.RecommendationStatus(status)
	return &r, nil
}
