package ingress

const (
	insertScriptQuery    = `INSERT INTO scripts DEFAULT VALUES RETURNING script_id`
	insertOperationQuery = `INSERT INTO operations (script_id, opcode, data) VALUES ($1, $2, $3)`

	findTransactionByHashQuery = `SELECT transaction_id FROM transactions WHERE transaction_hash = $1`
	insertTransactionQuery     = `
INSERT INTO transactions (transaction_hash, version, locktime)
VALUES ($1, $2, $3)
RETURNING transaction_id`

	insertTransactionParentQuery = `
INSERT INTO transactions_parents (block_id, transaction_id, index_in_block)
VALUES ($1, $2, $3)`

	insertInputQuery = `
INSERT INTO inputs (transaction_id, index_in_parent, previous_output_hash, previous_output_index, script_id, sequence)
VALUES ($1, $2, $3, $4, $5, $6)`

	insertOutputQuery = `
INSERT INTO outputs (transaction_id, index_in_parent, value, script_id)
VALUES ($1, $2, $3 / 100000000.0, $4)`

	insertBlockQuery = `
INSERT INTO blocks (block_hash, prev_block_hash, prev_block_id, version, when_created, bits_head, bits_body, nonce, merkle_root, space, depth, span_left, span_right, status)
VALUES ($1, $2, NULL, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'orphan')
RETURNING block_id`
)
