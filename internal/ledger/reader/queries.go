package reader

const (
	selectOperationsQuery = `
SELECT opcode, data
FROM operations
WHERE script_id = $1
ORDER BY operation_id ASC`

	selectInputsQuery = `
SELECT input_id, index_in_parent, previous_output_hash, previous_output_index, script_id, sequence
FROM inputs
WHERE transaction_id = $1
ORDER BY index_in_parent ASC`

	selectOutputsQuery = `
SELECT output_id, index_in_parent, sql_to_internal(value), script_id
FROM outputs
WHERE transaction_id = $1
ORDER BY index_in_parent ASC`

	selectTransactionQuery = `
SELECT transaction_hash, version, locktime
FROM transactions
WHERE transaction_id = $1`

	selectBlockTransactionsQuery = `
SELECT transaction_id, index_in_block
FROM transactions_parents
WHERE block_id = $1
ORDER BY index_in_block ASC`

	selectBlockQuery = `
SELECT block_id, block_hash, prev_block_hash, prev_block_id,
       version, when_created, bits_head, bits_body, nonce, merkle_root,
       space, depth, span_left, span_right, status
FROM blocks
WHERE block_id = $1`
)
