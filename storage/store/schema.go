package store

// Schema creates the submissions table; applied by NewPostgresStore when missing
const Schema = `
CREATE TABLE IF NOT EXISTS submissions (
    request_id          TEXT PRIMARY KEY,
    image_hash          TEXT NOT NULL,
    status              TEXT NOT NULL,
    stage               TEXT NOT NULL DEFAULT '',
    retry_count         INTEGER NOT NULL DEFAULT 0,
    error_message       TEXT NOT NULL DEFAULT '',
    image_id            TEXT NOT NULL DEFAULT '',
    chain_id            BIGINT,
    mint_tx_hash        TEXT NOT NULL DEFAULT '',
    token_id            TEXT NOT NULL DEFAULT '',
    token_contract      TEXT NOT NULL DEFAULT '',
    register_tx_hash    TEXT NOT NULL DEFAULT '',
    registered_address  TEXT NOT NULL DEFAULT '',
    mint_tx_url         TEXT NOT NULL DEFAULT '',
    register_tx_url     TEXT NOT NULL DEFAULT '',
    note                TEXT NOT NULL DEFAULT '',
    received_timestamp  TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS submissions_status_idx ON submissions (status);
`
