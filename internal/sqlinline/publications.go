package sqlinline

const QInsertPublication = `--sql 5e7b1c44-93d2-4f0a-8a5e-2d6c9f1b7a30
insert into publications (job_id, remote_id, title, published_at)
values ($1::text, $2::text, $3::text, $4::timestamptz)
on conflict (job_id) do update set
    remote_id = excluded.remote_id,
    title = excluded.title,
    published_at = excluded.published_at;
`

const QListRecentPublications = `--sql b3a91f07-6c2e-4d85-9e14-7f0a2c5d8b61
select job_id, remote_id, title, published_at
from publications
order by published_at desc
limit $1::int;
`
