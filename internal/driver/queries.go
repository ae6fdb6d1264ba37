package driver

const (
	SaveRunQuery = `
		MERGE (r:Run {uuid: $uuid})
		SET r.type = $type,
			r.prompt = $prompt,
			r.timestamp = $timestamp,
			r.summarizer_model = $summarizer_model,
			r.schema_version = $schema_version,
			r.synthesis = $synthesis,
			r.document = $document,
			r.created_at = $created_at
		RETURN r.uuid AS uuid
	`

	SaveResponseQuery = `
		MATCH (r:Run {uuid: $run_uuid})
		MERGE (m:Response {uuid: $uuid})
		SET m.model_id = $model_id,
			m.provider = $provider,
			m.model = $model,
			m.content = $content,
			m.response_time_ms = $response_time_ms
		MERGE (r)-[:RESPONDED]->(m)
		RETURN m.uuid AS uuid
	`

	SaveComparedEdgeQuery = `
		MATCH (r:Run {uuid: $run_uuid})-[:RESPONDED]->(a:Response {model_id: $model_a})
		MATCH (r)-[:RESPONDED]->(b:Response {model_id: $model_b})
		MERGE (a)-[c:COMPARED {run_uuid: $run_uuid}]->(b)
		SET c.winner = $winner,
			c.reasoning = $reasoning
		RETURN c.winner AS winner
	`

	GetRunQuery = `
		MATCH (r:Run {uuid: $uuid})
		RETURN r.document AS document
	`

	ListRunsQuery = `
		MATCH (r:Run)
		RETURN r.uuid AS uuid, r.type AS type, r.prompt AS prompt, r.timestamp AS timestamp
		ORDER BY r.created_at DESC
		LIMIT $limit
	`
)
