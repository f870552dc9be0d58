package sqlinline

const QLockJobPaid = `--sql 840719de-3b60-4c23-ba19-1f4df63bc79b
select paid
from provider_jobs
where id = $1::uuid
for update;
`

const QSetJobPaid = `--sql 21e3c7d4-6121-4942-97a3-7c487f2644b7
update provider_jobs
set paid = $2::bool,
    updated_at = now()
where id = $1::uuid;
`

const QLockAccountBalance = `--sql fda44fe3-83dc-454d-a128-9723b1316634
select credits
from accounts
where id = $1::text
for update;
`

const QSelectAccountBalance = `--sql ccf10967-7b87-4118-b66f-222fa3eb12f6
select id, credits
from accounts
where id = $1::text;
`

const QSetAccountBalance = `--sql e704e501-dfc8-4a04-be4d-6011cc41d036
update accounts
set credits = $2::int,
    updated_at = now()
where id = $1::text
  and $2::int >= 0;
`

const QEnsureAccount = `--sql 8181d41d-2ee1-461f-ac6f-dcfdb9fb0ddb
insert into accounts (id, credits, created_at, updated_at)
values ($1::text, 0, now(), now())
on conflict (id) do nothing;
`

const QInsertLedgerEntry = `--sql cd3a90dd-07df-40c2-beac-d98b5fe23cee
insert into credit_ledger (id, account_id, job_id, delta, reason, created_at)
values (gen_random_uuid(), $1::text, nullif($2::text, '')::uuid, $3::int, $4::text, now());
`
