package store

// Database schema definitions for the credit ledger and generation log

const createAccountsTable = `
CREATE TABLE IF NOT EXISTS accounts (
    id UUID PRIMARY KEY,
    email VARCHAR(255) NOT NULL,
    name VARCHAR(255),
    email_verified TIMESTAMPTZ,
    password_hash TEXT,
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    credits INTEGER NOT NULL DEFAULT 0,
    referral_code VARCHAR(64),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE(email),
    UNIQUE(referral_code),
    CHECK (credits >= 0)
);
`

const createTransactionsTable = `
CREATE TABLE IF NOT EXISTS transactions (
    id UUID PRIMARY KEY,
    account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    amount DECIMAL(12,2) NOT NULL DEFAULT 0,
    currency VARCHAR(8) NOT NULL,
    credits INTEGER NOT NULL,
    status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'completed', 'refund', 'failed')),
    provider VARCHAR(20) NOT NULL CHECK (provider IN ('paypal', 'razorpay', 'system')),
    provider_transaction_id VARCHAR(255) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (amount >= 0)
);
`

// Settlement idempotency: one completed credit per external capture id.
// Refund rows reuse synthetic ids (refund-fal-<status>) and are exempt.
const createSettlementIdempotencyIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_provider_txn
    ON transactions (provider, provider_transaction_id)
    WHERE status = 'completed' AND provider <> 'system';
`

const createGenerationJobsTable = `
CREATE TABLE IF NOT EXISTS generation_jobs (
    id UUID PRIMARY KEY,
    account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    prompt TEXT NOT NULL,
    model VARCHAR(255) NOT NULL,
    image_url TEXT,
    cost INTEGER NOT NULL,
    status VARCHAR(20) NOT NULL CHECK (status IN ('processing', 'completed', 'failed')),
    provider_request_id VARCHAR(255),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_transactions_account_id ON transactions (account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_generation_jobs_account_id ON generation_jobs (account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_generation_jobs_status ON generation_jobs (status, created_at);
`
