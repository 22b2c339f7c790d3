package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/contract-optimizer/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// development and the extract/recommend CLI subcommands.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contracts (
	id                       TEXT PRIMARY KEY,
	user_id                  TEXT NOT NULL,
	provider_name            TEXT NOT NULL DEFAULT '',
	contract_nickname        TEXT NOT NULL DEFAULT '',
	contract_type            TEXT,
	monthly_cost             REAL,
	annual_cost              REAL,
	currency                 TEXT NOT NULL DEFAULT 'USD',
	payment_frequency        TEXT,
	start_date               TEXT,
	end_date                 TEXT,
	auto_renewal             INTEGER,
	cancellation_notice_days INTEGER,
	key_terms                TEXT NOT NULL DEFAULT '[]',
	parties                  TEXT NOT NULL DEFAULT '[]',
	risks                    TEXT NOT NULL DEFAULT '[]',
	extraction_confidence    REAL,
	user_verified            INTEGER NOT NULL DEFAULT 0,
	created_at               DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at               DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS contract_files (
	id            TEXT PRIMARY KEY,
	contract_id   TEXT NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
	user_id       TEXT NOT NULL,
	file_path     TEXT NOT NULL,
	file_name     TEXT NOT NULL,
	file_size     INTEGER NOT NULL DEFAULT 0,
	file_label    TEXT NOT NULL DEFAULT '',
	document_type TEXT NOT NULL DEFAULT 'other',
	display_order INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS recommendations (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	contract_id       TEXT REFERENCES contracts(id) ON DELETE SET NULL,
	type              TEXT NOT NULL,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	estimated_savings REAL,
	priority          TEXT NOT NULL DEFAULT 'medium',
	status            TEXT NOT NULL DEFAULT 'pending',
	reasoning         TEXT NOT NULL DEFAULT '',
	confidence        REAL NOT NULL DEFAULT 0.5,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	acted_on_at       DATETIME
);

CREATE INDEX IF NOT EXISTS idx_contracts_user_id ON contracts(user_id);
CREATE INDEX IF NOT EXISTS idx_contract_files_contract_id ON contract_files(contract_id);
CREATE INDEX IF NOT EXISTS idx_recommendations_user_id ON recommendations(user_id);
CREATE INDEX IF NOT EXISTS idx_recommendations_user_status ON recommendations(user_id, status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateContract(ctx context.Context, c model.Contract) (*model.Contract, error) {
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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contracts (`+contractColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.ProviderName, c.Nickname, enumPtr(c.ContractType), c.MonthlyCost, c.AnnualCost,
		c.Currency, enumPtr(c.PaymentFrequency), c.StartDate, c.EndDate, c.AutoRenewal, c.CancellationNoticeDays,
		string(keyTerms), string(parties), string(risks), c.ExtractionConfidence, c.UserVerified, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert contract")
	}

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

func (s *SQLiteStore) GetContract(ctx context.Context, userID, contractID string) (*model.Contract, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE id = ? AND user_id = ?`,
		contractID, userID,
	)
	c, err := scanContractRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "contract %s", contractID)
		}
		return nil, eris.Wrapf(err, "sqlite: get contract %s", contractID)
	}

	files, err := s.ListContractFiles(ctx, userID, contractID)
	if err != nil {
		return nil, err
	}
	c.Files = files
	return c, nil
}

func (s *SQLiteStore) ListContracts(ctx context.Context, userID string, filter ContractFilter) ([]model.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE user_id = ?`
	args := []any{userID}

	if filter.ContractType != "" {
		query += ` AND contract_type = ?`
		args = append(args, string(filter.ContractType))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contracts")
	}
	defer rows.Close()

	var contracts []model.Contract
	for rows.Next() {
		c, err := scanContractRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contract")
		}
		contracts = append(contracts, *c)
	}
	return contracts, eris.Wrap(rows.Err(), "sqlite: list contracts iterate")
}

func (s *SQLiteStore) UpdateContract(ctx context.Context, c model.Contract) (*model.Contract, error) {
	c.UpdatedAt = time.Now().UTC()

	keyTerms, parties, risks, err := marshalContractJSON(c)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE contracts SET
		   provider_name = ?, contract_nickname = ?, contract_type = ?, monthly_cost = ?,
		   annual_cost = ?, currency = ?, payment_frequency = ?, start_date = ?, end_date = ?,
		   auto_renewal = ?, cancellation_notice_days = ?, key_terms = ?, parties = ?,
		   risks = ?, extraction_confidence = ?, user_verified = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		c.ProviderName, c.Nickname, enumPtr(c.ContractType), c.MonthlyCost, c.AnnualCost,
		c.Currency, enumPtr(c.PaymentFrequency), c.StartDate, c.EndDate, c.AutoRenewal,
		c.CancellationNoticeDays, string(keyTerms), string(parties), string(risks),
		c.ExtractionConfidence, c.UserVerified, c.UpdatedAt, c.ID, c.UserID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update contract %s", c.ID)
	}
	if err := checkRowsAffected(res, "contract", c.ID); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) DeleteContract(ctx context.Context, userID, contractID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM contracts WHERE id = ? AND user_id = ?`,
		contractID, userID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete contract %s", contractID)
	}
	return checkRowsAffected(res, "contract", contractID)
}

func (s *SQLiteStore) AddContractFile(ctx context.Context, f model.ContractFile) (*model.ContractFile, error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.CreatedAt = time.Now().UTC()
	if f.DocumentType == "" {
		f.DocumentType = model.DocOther
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contract_files (`+contractFileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ContractID, f.UserID, f.Path, f.Name, f.Size, f.Label,
		string(f.DocumentType), f.DisplayOrder, f.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert contract file for %s", f.ContractID)
	}
	return &f, nil
}

func (s *SQLiteStore) ListContractFiles(ctx context.Context, userID, contractID string) ([]model.ContractFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contractFileColumns+` FROM contract_files
		 WHERE contract_id = ? AND user_id = ?
		 ORDER BY display_order ASC, created_at ASC`,
		contractID, userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contract files")
	}
	defer rows.Close()

	var files []model.ContractFile
	for rows.Next() {
		var f model.ContractFile
		var docType string
		if err := rows.Scan(&f.ID, &f.ContractID, &f.UserID, &f.Path, &f.Name, &f.Size,
			&f.Label, &docType, &f.DisplayOrder, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contract file")
		}
		f.DocumentType = model.DocumentType(docType)
		files = append(files, f)
	}
	return files, eris.Wrap(rows.Err(), "sqlite: list contract files iterate")
}

func (s *SQLiteStore) CreateRecommendations(ctx context.Context, recs []model.Recommendation) ([]model.Recommendation, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

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

		_, err := tx.ExecContext(ctx,
			`INSERT INTO recommendations (`+recommendationColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.UserID, r.ContractID, string(r.Type), r.Title, r.Description,
			r.EstimatedSavings, string(r.Priority), string(r.Status), r.Reasoning,
			r.Confidence, r.CreatedAt, r.ActedOnAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: insert recommendation")
		}
		created = append(created, r)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit recommendations")
	}
	return created, nil
}

func (s *SQLiteStore) ListRecommendations(ctx context.Context, userID string, filter RecommendationFilter) ([]model.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + ` FROM recommendations WHERE user_id = ?`
	args := []any{userID}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(filter.Priority))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recommendations")
	}
	defer rows.Close()

	var recs []model.Recommendation
	for rows.Next() {
		r, err := scanRecommendationRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recommendation")
		}
		recs = append(recs, *r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list recommendations iterate")
}

func (s *SQLiteStore) GetRecommendation(ctx context.Context, userID, recID string) (*model.Recommendation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE id = ? AND user_id = ?`,
		recID, userID,
	)
	r, err := scanRecommendationRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "recommendation %s", recID)
		}
		return nil, eris.Wrapf(err, "sqlite: get recommendation %s", recID)
	}
	return r, nil
}

func (s *SQLiteStore) UpdateRecommendationStatus(ctx context.Context, userID, recID string, status model.RecommendationStatus) (*model.Recommendation, error) {
	var actedOnAt *time.Time
	if status == model.StatusAccepted || status == model.StatusDismissed {
		now := time.Now().UTC()
		actedOnAt = &now
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE recommendations SET status = ?, acted_on_at = COALESCE(?, acted_on_at)
		 WHERE id = ? AND user_id = ?`,
		string(status), actedOnAt, recID, userID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update recommendation status %s", recID)
	}
	if err := checkRowsAffected(res, "recommendation", recID); err != nil {
		return nil, err
	}
	return s.GetRecommendation(ctx, userID, recID)
}

func (s *SQLiteStore) AnalyzedContractIDs(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT contract_id FROM recommendations WHERE user_id = ? AND contract_id IS NOT NULL`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: analyzed contract ids")
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analyzed contract id")
		}
		ids[id] = true
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: analyzed contract ids iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanContractRow(row scannable) (*model.Contract, error) {
	var c model.Contract
	var contractType, paymentFrequency sql.NullString
	var keyTermsJSON, partiesJSON, risksJSON string

	err := row.Scan(&c.ID, &c.UserID, &c.ProviderName, &c.Nickname, &contractType,
		&c.MonthlyCost, &c.AnnualCost, &c.Currency, &paymentFrequency, &c.StartDate,
		&c.EndDate, &c.AutoRenewal, &c.CancellationNoticeDays, &keyTermsJSON,
		&partiesJSON, &risksJSON, &c.ExtractionConfidence, &c.UserVerified,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if contractType.Valid {
		ct := model.ContractType(contractType.String)
		c.ContractType = &ct
	}
	if paymentFrequency.Valid {
		pf := model.PaymentFrequency(paymentFrequency.String)
		c.PaymentFrequency = &pf
	}
	if err := json.Unmarshal([]byte(keyTermsJSON), &c.KeyTerms); err != nil {
		return nil, eris.Wrap(err, "unmarshal key terms")
	}
	if err := json.Unmarshal([]byte(partiesJSON), &c.Parties); err != nil {
		return nil, eris.Wrap(err, "unmarshal parties")
	}
	if err := json.Unmarshal([]byte(risksJSON), &c.Risks); err != nil {
		return nil, eris.Wrap(err, "unmarshal risks")
	}
	return &c, nil
}

func scanRecommendationRow(row scannable) (*model.Recommendation, error) {
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
