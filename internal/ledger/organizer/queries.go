package organizer

const (
	pointPrevQuery = `UPDATE blocks SET prev_block_id = $1 WHERE block_id = $2`

	orphanPairsQuery = `
SELECT child.block_id, child.space, parent.block_id
FROM blocks child
JOIN blocks parent ON parent.block_hash = child.prev_block_hash
WHERE child.space > 0 AND child.depth = 0
LIMIT 1`

	loadPositionInfoQuery = `
SELECT space, depth, span_left, span_right
FROM blocks
WHERE block_id = $1`

	loadSpanQuery = `SELECT span_left, span_right FROM blocks WHERE block_id = $1`

	hasDescendantQuery = `
SELECT 1 FROM blocks
WHERE space = $1 AND depth > $2 AND span_left >= $3 AND span_right <= $4
LIMIT 1`

	shiftRightOfParentRightQuery = `
UPDATE blocks SET span_right = span_right + $1
WHERE space = $2 AND span_right > $3`

	shiftLeftOfParentRightQuery = `
UPDATE blocks SET span_left = span_left + $1
WHERE space = $2 AND span_left > $3`

	extendAncestorsQuery = `
UPDATE blocks SET span_right = span_right + $1
WHERE space = $2 AND depth < $3 AND span_right = $4`

	shiftChainsAboveQuery = `
UPDATE chains SET chain_id = chain_id + $1 WHERE chain_id > $2`

	insertSubChainQuery = `
INSERT INTO chains (work, chain_id, depth)
SELECT work, chain_id + $1, depth FROM chains WHERE chain_id = $2`

	positionChildBranchQuery = `
UPDATE blocks SET
    space = $1,
    depth = depth + $2,
    span_left = span_left + $3,
    span_right = span_right + $3
WHERE space = $4`

	lonelyChildQuery = `
SELECT 1 FROM blocks
WHERE space = $1 AND depth = $2 AND span_left = $3 AND span_right = $4
LIMIT 1`

	deleteChainsRangeQuery = `DELETE FROM chains WHERE chain_id BETWEEN $1 AND $2`

	shiftChainsDownQuery = `UPDATE chains SET chain_id = chain_id - $1 WHERE chain_id > $2`

	unwindChainQuery = `
UPDATE chains
SET work = work - COALESCE((
    SELECT SUM(difficulty(bits_head, bits_body))
    FROM blocks
    WHERE space = 0
      AND depth >= $1
      AND span_left <= $2
      AND span_right >= $2
      AND status = 'valid'
), 0)
WHERE chain_id = $2`

	deleteSubtreeBlocksQuery = `
DELETE FROM blocks
WHERE space = $1 AND depth >= $2 AND span_left >= $3 AND span_right <= $4`

	shiftSpanLeftDownQuery = `
UPDATE blocks SET span_left = span_left - $1
WHERE space = $2 AND span_left > $3`

	shiftSpanRightDownQuery = `
UPDATE blocks SET span_right = span_right - $1
WHERE space = $2 AND span_right >= $3`
)
