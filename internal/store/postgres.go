package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/models"
)

const uniqueViolationCode = "23505"

// PostgresStore implements ledger and generation-log storage using PostgreSQL
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// Initialize creates the necessary database tables
func (s *PostgresStore) Initialize(ctx context.Context) error {
	queries := []string{
		createAccountsTable,
		createTransactionsTable,
		createSettlementIdempotencyIndex,
		createGenerationJobsTable,
		createIndexes,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	s.logger.Info("Database tables initialized successfully")
	return nil
}

// Account operations

// CreateAccount creates a new account seeded with the signup credit grant.
func (s *PostgresStore) CreateAccount(ctx context.Context, req *models.AccountCreateRequest, signupGrant int) (*models.Account, error) {
	account := &models.Account{
		ID:           uuid.New(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: req.PasswordHash,
		Credits:      signupGrant,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	query := `
		INSERT INTO accounts (id, email, name, password_hash, credits, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.Exec(ctx, query,
		account.ID, account.Email, account.Name, account.PasswordHash,
		account.Credits, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, models.ErrAccountAlreadyExists
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("Account created",
		zap.String("account_id", account.ID.String()),
		zap.String("email", account.Email),
		zap.Int("signup_grant", signupGrant),
	)
	return account, nil
}

// GetAccount retrieves an account by ID
func (s *PostgresStore) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	account := &models.Account{}
	query := `
		SELECT id, email, name, email_verified, password_hash, is_admin, credits,
		       referral_code, created_at, updated_at
		FROM accounts WHERE id = $1
	`

	err := s.db.QueryRow(ctx, query, accountID).Scan(
		&account.ID, &account.Email, &account.Name, &account.EmailVerified,
		&account.PasswordHash, &account.IsAdmin, &account.Credits,
		&account.ReferralCode, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetAccountByEmail retrieves an account by email
func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	account := &models.Account{}
	query := `
		SELECT id, email, name, email_verified, password_hash, is_admin, credits,
		       referral_code, created_at, updated_at
		FROM accounts WHERE email = $1
	`

	err := s.db.QueryRow(ctx, query, email).Scan(
		&account.ID, &account.Email, &account.Name, &account.EmailVerified,
		&account.PasswordHash, &account.IsAdmin, &account.Credits,
		&account.ReferralCode, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// DebitCredits atomically deducts amount from the account balance. The
// balance check and the deduction happen in one conditional UPDATE so two
// concurrent debits can never drive the balance negative.
func (s *PostgresStore) DebitCredits(ctx context.Context, accountID uuid.UUID, amount int) (int, error) {
	if amount < 0 {
		return 0, models.ErrInvalidAmount
	}

	var newBalance int
	query := `
		UPDATE accounts
		SET credits = credits - $2, updated_at = NOW()
		WHERE id = $1 AND credits >= $2
		RETURNING credits
	`

	err := s.db.QueryRow(ctx, query, accountID, amount).Scan(&newBalance)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Either the account does not exist or the balance is too low.
			if _, getErr := s.GetAccount(ctx, accountID); getErr != nil {
				return 0, getErr
			}
			return 0, models.ErrInsufficientCredits
		}
		return 0, fmt.Errorf("failed to debit credits: %w", err)
	}

	return newBalance, nil
}

// CreditCredits atomically adds amount to the account balance.
func (s *PostgresStore) CreditCredits(ctx context.Context, accountID uuid.UUID, amount int) (int, error) {
	if amount < 0 {
		return 0, models.ErrInvalidAmount
	}

	var newBalance int
	query := `
		UPDATE accounts
		SET credits = credits + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING credits
	`

	err := s.db.QueryRow(ctx, query, accountID, amount).Scan(&newBalance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, models.ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to credit credits: %w", err)
	}

	return newBalance, nil
}

// RefundCredits re-credits a failed charge and appends the matching refund
// ledger entry inside one transaction, so a refund is never recorded without
// the balance actually moving.
func (s *PostgresStore) RefundCredits(ctx context.Context, accountID uuid.UUID, amount int, providerTxnID string) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin refund transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var newBalance int
	err = tx.QueryRow(ctx, `
		UPDATE accounts
		SET credits = credits + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING credits
	`, accountID, amount).Scan(&newBalance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, models.ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to re-credit account: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (id, account_id, amount, currency, credits, status, provider, provider_transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.New(), accountID, decimal.Zero, "coin", amount,
		models.TransactionStatusRefund, models.ProviderSystem, providerTxnID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to record refund transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit refund: %w", err)
	}

	s.logger.Info("Credits refunded",
		zap.String("account_id", accountID.String()),
		zap.Int("credits", amount),
		zap.String("reference", providerTxnID),
	)
	return newBalance, nil
}

// Transaction operations

// SettlePayment credits a verified payment capture exactly once. The ledger
// insert and the balance update run in one transaction; a replayed capture id
// hits the unique index and the original settlement is returned instead.
func (s *PostgresStore) SettlePayment(ctx context.Context, txn *models.Transaction) (*models.SettlementResult, error) {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	txn.Status = models.TransactionStatusCompleted
	txn.CreatedAt = time.Now().UTC()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin settlement transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (id, account_id, amount, currency, credits, status, provider, provider_transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, txn.ID, txn.AccountID, txn.Amount, txn.Currency, txn.Credits,
		txn.Status, txn.Provider, txn.ProviderTransactionID, txn.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			// Already settled: return the original outcome without re-crediting.
			existing, getErr := s.GetTransactionByProviderID(ctx, txn.Provider, txn.ProviderTransactionID)
			if getErr != nil {
				return nil, fmt.Errorf("settlement conflict but original not found: %w", getErr)
			}
			account, getErr := s.GetAccount(ctx, txn.AccountID)
			if getErr != nil {
				return nil, getErr
			}
			s.logger.Warn("Duplicate settlement attempt ignored",
				zap.String("provider", string(txn.Provider)),
				zap.String("provider_transaction_id", txn.ProviderTransactionID),
			)
			return &models.SettlementResult{
				TransactionID:  existing.ID,
				CreditsAdded:   existing.Credits,
				NewBalance:     account.Credits,
				AlreadySettled: true,
			}, nil
		}
		return nil, fmt.Errorf("failed to insert settlement transaction: %w", err)
	}

	var newBalance int
	err = tx.QueryRow(ctx, `
		UPDATE accounts
		SET credits = credits + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING credits
	`, txn.AccountID, txn.Credits).Scan(&newBalance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to credit settlement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}

	s.logger.Info("Payment settled",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("provider", string(txn.Provider)),
		zap.String("amount", txn.Amount.String()),
		zap.Int("credits", txn.Credits),
	)

	return &models.SettlementResult{
		TransactionID: txn.ID,
		CreditsAdded:  txn.Credits,
		NewBalance:    newBalance,
	}, nil
}

// GetTransactionByProviderID retrieves a completed settlement by its
// external capture id.
func (s *PostgresStore) GetTransactionByProviderID(ctx context.Context, provider models.PaymentProvider, providerTxnID string) (*models.Transaction, error) {
	txn := &models.Transaction{}
	query := `
		SELECT id, account_id, amount, currency, credits, status, provider, provider_transaction_id, created_at
		FROM transactions
		WHERE provider = $1 AND provider_transaction_id = $2 AND status = 'completed'
	`

	err := s.db.QueryRow(ctx, query, provider, providerTxnID).Scan(
		&txn.ID, &txn.AccountID, &txn.Amount, &txn.Currency, &txn.Credits,
		&txn.Status, &txn.Provider, &txn.ProviderTransactionID, &txn.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return txn, nil
}

// ListTransactions returns the ledger history for an account, newest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, req *models.TransactionHistoryRequest) ([]*models.Transaction, error) {
	query := `
		SELECT id, account_id, amount, currency, credits, status, provider, provider_transaction_id, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, req.AccountID, req.Limit, req.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var list []*models.Transaction
	for rows.Next() {
		txn := &models.Transaction{}
		if err := rows.Scan(
			&txn.ID, &txn.AccountID, &txn.Amount, &txn.Currency, &txn.Credits,
			&txn.Status, &txn.Provider, &txn.ProviderTransactionID, &txn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		list = append(list, txn)
	}
	return list, rows.Err()
}

// Generation job operations

// CreateGenerationJob inserts a new generation log row.
func (s *PostgresStore) CreateGenerationJob(ctx context.Context, job *models.GenerationJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt

	query := `
		INSERT INTO generation_jobs (id, account_id, prompt, model, image_url, cost, status, provider_request_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.Exec(ctx, query,
		job.ID, job.AccountID, job.Prompt, job.Model, job.ImageURL,
		job.Cost, job.Status, job.ProviderRequestID, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create generation job: %w", err)
	}

	return nil
}

// CompleteGenerationJob transitions a job to completed with its output media.
func (s *PostgresStore) CompleteGenerationJob(ctx context.Context, jobID uuid.UUID, imageURL string) error {
	result, err := s.db.Exec(ctx, `
		UPDATE generation_jobs
		SET status = 'completed', image_url = $2, updated_at = NOW()
		WHERE id = $1
	`, jobID, imageURL)
	if err != nil {
		return fmt.Errorf("failed to complete generation job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// FailGenerationJob transitions a job to failed.
func (s *PostgresStore) FailGenerationJob(ctx context.Context, jobID uuid.UUID) error {
	result, err := s.db.Exec(ctx, `
		UPDATE generation_jobs
		SET status = 'failed', updated_at = NOW()
		WHERE id = $1
	`, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark generation job failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// ListStalledJobs returns processing jobs older than the given age, oldest
// first, for the reconciler to resolve.
func (s *PostgresStore) ListStalledJobs(ctx context.Context, olderThan time.Duration, limit int) ([]*models.GenerationJob, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	query := `
		SELECT id, account_id, prompt, model, image_url, cost, status, provider_request_id, created_at, updated_at
		FROM generation_jobs
		WHERE status = 'processing' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stalled jobs: %w", err)
	}
	defer rows.Close()

	var list []*models.GenerationJob
	for rows.Next() {
		job := &models.GenerationJob{}
		if err := rows.Scan(
			&job.ID, &job.AccountID, &job.Prompt, &job.Model, &job.ImageURL,
			&job.Cost, &job.Status, &job.ProviderRequestID, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan generation job: %w", err)
		}
		list = append(list, job)
	}
	return list, rows.Err()
}

// ListGenerationJobs returns the generation history for an account, newest first.
func (s *PostgresStore) ListGenerationJobs(ctx context.Context, req *models.GenerationHistoryRequest) ([]*models.GenerationJob, error) {
	query := `
		SELECT id, account_id, prompt, model, image_url, cost, status, provider_request_id, created_at, updated_at
		FROM generation_jobs
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, req.AccountID, req.Limit, req.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list generation jobs: %w", err)
	}
	defer rows.Close()

	var list []*models.GenerationJob
	for rows.Next() {
		job := &models.GenerationJob{}
		if err := rows.Scan(
			&job.ID, &job.AccountID, &job.Prompt, &job.Model, &job.ImageURL,
			&job.Cost, &job.Status, &job.ProviderRequestID, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan generation job: %w", err)
		}
		list = append(list, job)
	}
	return list, rows.Err()
}
