// Package db owns the relational schema the repositories rely on.
package db

import (
	"context"
	"fmt"

	"stylebff/internal/infra"
)

// Schema creates every table idempotently. It runs as one simple-protocol
// batch, so it must not take arguments.
const Schema = `--sql 3f24f0cd-34a0-46b1-a805-4b9f58be1e69
create table if not exists accounts (
    id          text primary key,
    credits     integer not null default 0 check (credits >= 0),
    created_at  timestamptz not null default now(),
    updated_at  timestamptz not null default now()
);

create table if not exists provider_jobs (
    id             uuid primary key,
    external_id    text unique,
    kind           text not null check (kind in ('image', 'video', 'training')),
    account_id     text not null,
    cost           integer not null check (cost >= 0),
    status         text not null,
    paid           boolean not null default false,
    input_json     jsonb not null default '{}'::jsonb,
    output_json    jsonb,
    error_message  text,
    created_at     timestamptz not null default now(),
    updated_at     timestamptz not null default now()
);

create index if not exists provider_jobs_pending_idx
    on provider_jobs (updated_at)
    where status in ('starting', 'processing');

create table if not exists credit_ledger (
    id          uuid primary key,
    account_id  text not null references accounts(id),
    job_id      uuid references provider_jobs(id),
    delta       integer not null,
    reason      text not null,
    created_at  timestamptz not null default now()
);

create table if not exists outfit_covers (
    entity_id   text primary key,
    object_key  text not null,
    public_url  text not null,
    updated_at  timestamptz not null default now()
);

create table if not exists integration_tokens (
    id          uuid primary key,
    provider    text not null unique,
    token       text not null,
    properties  jsonb not null default '{}'::jsonb,
    created_at  timestamptz not null default now(),
    updated_at  timestamptz not null default now()
);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, exec infra.SQLExecutor) error {
	if _, err := exec.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
