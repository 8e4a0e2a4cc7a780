package validator

const (
	nextOrphanQuery = `
SELECT block_id
FROM blocks
WHERE status = 'orphan' AND space = 0
ORDER BY depth ASC
LIMIT 1`

	previousBlockBitsQuery = `
SELECT bits_head, bits_body
FROM blocks
WHERE space = 0 AND depth = $1 AND span_left <= $2 AND span_right >= $3`

	actualTimespanQuery = `
SELECT EXTRACT(EPOCH FROM end_block.when_created - start_block.when_created)
FROM blocks AS start_block, blocks AS end_block
WHERE start_block.space = 0
  AND start_block.depth = $1
  AND start_block.span_left <= $2
  AND start_block.span_right >= $3
  AND end_block.space = 0
  AND end_block.depth = $4
  AND end_block.span_left <= $2
  AND end_block.span_right >= $3`

	medianTimePastQuery = `
SELECT EXTRACT(EPOCH FROM when_created)
FROM blocks
WHERE space = 0
  AND depth < $1
  AND depth >= $1 - 11
  AND span_left <= $2
  AND span_right >= $3
ORDER BY when_created ASC
LIMIT 1 OFFSET $4`

	transactionIDInBlockQuery = `
SELECT transaction_id
FROM transactions_parents
WHERE block_id = $1 AND index_in_block = $2`

	findTransactionIDByHashQuery = `SELECT transaction_id FROM transactions WHERE transaction_hash = $1`

	findOutputQuery = `
SELECT script_id, sql_to_internal(value)
FROM outputs
WHERE transaction_id = $1 AND index_in_parent = $2`

	transactionInputsQuery = `
SELECT previous_output_hash, previous_output_index
FROM inputs
WHERE transaction_id = $1`

	previousBlockDepthQuery = `
SELECT blocks.depth
FROM transactions_parents, blocks
WHERE transaction_id = $1
  AND transactions_parents.block_id = blocks.block_id
  AND space = 0
  AND span_left <= $2
  AND span_right >= $3`

	searchDoubleSpendQuery = `
SELECT i2.input_id
FROM inputs i2
JOIN transactions_parents tp ON tp.transaction_id = i2.transaction_id
JOIN blocks b ON b.block_id = tp.block_id
WHERE i2.previous_output_hash = $1
  AND i2.previous_output_index = $2
  AND NOT (i2.transaction_id = $3 AND i2.index_in_parent = $4)
  AND b.space = 0
  AND b.span_left <= $5
  AND b.span_right >= $6
LIMIT 1`

	finalizeChainsQuery = `
UPDATE chains
SET work = work + difficulty($1, $2), depth = $3
WHERE chain_id >= $4 AND chain_id <= $5`

	finalizeBlockStatusQuery = `UPDATE blocks SET status = 'valid' WHERE block_id = $1`
)
