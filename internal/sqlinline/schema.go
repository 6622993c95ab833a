package sqlinline

// QEnsureSchema creates the two tables the service owns. Both are optional
// side stores: jobs themselves live in memory only.
const QEnsureSchema = `--sql 0d6a3e52-1f4b-4c7d-8e29-6b5a9c3f0e14
create table if not exists integration_tokens (
    id uuid primary key,
    provider text not null unique,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create table if not exists publications (
    job_id text primary key,
    remote_id text not null,
    title text not null,
    published_at timestamptz not null default now()
);
`
