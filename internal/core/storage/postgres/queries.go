package postgres

// SQL for the bucket_aggregates table. One physical table holds every
// (aggregation, granularity) logical table; the primary key is the BucketKey
// scoped by both.

const (
	// queryUpsertBucket replaces the full row on its bucket key.
	// Replacement (not additive merge) keeps a retried close idempotent.
	queryUpsertBucket = `
		INSERT INTO bucket_aggregates (
			aggregation, granularity, group_key, bucket_start,
			group_values, state, output_values, event_count, last_event_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (aggregation, granularity, group_key, bucket_start)
		DO UPDATE SET
			group_values  = EXCLUDED.group_values,
			state         = EXCLUDED.state,
			output_values = EXCLUDED.output_values,
			event_count   = EXCLUDED.event_count,
			last_event_at = EXCLUDED.last_event_at,
			updated_at    = EXCLUDED.updated_at
	`

	queryRangeBuckets = `
		SELECT group_values, bucket_start, state, updated_at
		FROM bucket_aggregates
		WHERE aggregation = $1
		  AND granularity = $2
		  AND bucket_start >= $3
		  AND bucket_start < $4
		ORDER BY bucket_start ASC, group_key ASC
	`

	// queryRangeBucketsFrom is the open-ended variant used by recovery replay.
	queryRangeBucketsFrom = `
		SELECT group_values, bucket_start, state, updated_at
		FROM bucket_aggregates
		WHERE aggregation = $1
		  AND granularity = $2
		  AND bucket_start >= $3
		ORDER BY bucket_start ASC, group_key ASC
	`

	queryLatestPerGroup = `
		SELECT DISTINCT ON (group_key) group_values, bucket_start, state, updated_at
		FROM bucket_aggregates
		WHERE aggregation = $1
		  AND granularity = $2
		ORDER BY group_key ASC, bucket_start DESC
	`

	queryReadBucket = `
		SELECT group_values, bucket_start, state, updated_at
		FROM bucket_aggregates
		WHERE aggregation = $1
		  AND granularity = $2
		  AND group_key = $3
		  AND bucket_start = $4
	`

	queryDeleteBucket = `
		DELETE FROM bucket_aggregates
		WHERE aggregation = $1
		  AND granularity = $2
		  AND group_key = $3
		  AND bucket_start = $4
	`

	queryPurgeBefore = `
		DELETE FROM bucket_aggregates
		WHERE aggregation = $1
		  AND granularity = $2
		  AND bucket_start < $3
	`
)
