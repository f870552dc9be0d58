package sqlinline

const QSelectCover = `--sql 5e308dce-a26a-4a3b-876a-2a36fb693687
select object_key
from outfit_covers
where entity_id = $1::text;
`

const QUpsertCover = `--sql 715150d7-5af1-418b-8257-f0c70fee48a9
insert into outfit_covers (entity_id, object_key, public_url, updated_at)
values ($1::text, $2::text, $3::text, now())
on conflict (entity_id) do update set
    object_key = excluded.object_key,
    public_url = excluded.public_url,
    updated_at = now();
`
