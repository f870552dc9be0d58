package sqlinline

const QInsertJob = `--sql a5f2a77e-e657-4d52-9989-939b192d518e
insert into provider_jobs (id, external_id, kind, account_id, cost, status, paid, input_json, created_at, updated_at)
values ($1::uuid, $2::text, $3::text, $4::text, $5::int, $6::text, $7::bool, coalesce($8::jsonb, '{}'::jsonb), now(), now())
returning created_at, updated_at;
`

const QSetJobExternalID = `--sql ebcf0d52-0583-44ee-adce-caa6c6b15d2e
update provider_jobs
set external_id = $2::text,
    status = $3::text,
    updated_at = now()
where id = $1::uuid;
`

const QSelectJobByID = `--sql f2dde934-5ae4-41d4-87f0-d8e3f9ce0c1d
select id::text, coalesce(external_id, ''), kind, account_id, cost, status, paid,
       coalesce(input_json, '{}'::jsonb), output_json, coalesce(error_message, ''), created_at, updated_at
from provider_jobs
where id = $1::uuid;
`

const QSelectJobByExternalID = `--sql 4b0de2fe-a1e8-4719-8015-a8683cfd010b
select id::text, coalesce(external_id, ''), kind, account_id, cost, status, paid,
       coalesce(input_json, '{}'::jsonb), output_json, coalesce(error_message, ''), created_at, updated_at
from provider_jobs
where external_id = $1::text
limit 1;
`

const QUpdateJobStatus = `--sql 6de442ba-b71e-4eb1-8601-870b59a7c48a
update provider_jobs
set status = $2::text,
    output_json = coalesce($3::jsonb, output_json),
    error_message = coalesce(nullif($4::text, ''), error_message),
    updated_at = now()
where id = $1::uuid
  and status not in ('succeeded', 'failed', 'canceled');
`

const QListPendingJobs = `--sql 9d0d73ac-cdfd-4b15-841d-d00bc86f10c7
select id::text, coalesce(external_id, ''), kind, account_id, cost, status, paid,
       coalesce(input_json, '{}'::jsonb), output_json, coalesce(error_message, ''), created_at, updated_at
from provider_jobs
where status in ('starting', 'processing')
  and external_id is not null
  and updated_at < $1::timestamptz
order by updated_at asc
limit $2::int;
`
