package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/blockforest/ledgercore/internal/ledger/barrier"
	"github.com/blockforest/ledgercore/internal/ledger/dialect/btcdialect"
	"github.com/blockforest/ledgercore/internal/ledger/ingress"
	"github.com/blockforest/ledgercore/internal/ledger/model"
	"github.com/blockforest/ledgercore/internal/ledger/organizer"
	"github.com/blockforest/ledgercore/internal/ledger/reader"
	"github.com/blockforest/ledgercore/internal/ledger/store"
	"github.com/blockforest/ledgercore/internal/ledger/validator"
)

const postgresImage = "postgres:16-alpine"

// LedgerSuite exercises the ingress/organizer/validator pipeline end to
// end against a real Postgres instance, the same integration-test shape
// used for the repository layer this package's tests were modeled on:
// one shared container for the suite, every table truncated after each
// test.
type LedgerSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	container *tcpostgres.PostgresContainer
	dsn       string

	db    *sql.DB
	s     *store.Store
	r     *reader.Reader
	o     *organizer.Organizer
	v     *validator.Validator
	g     *ingress.Ingress
	close func() error
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)

	container, err := tcpostgres.Run(s.ctx, postgresImage,
		tcpostgres.WithDatabase("ledgercore"),
		tcpostgres.WithUsername("ledgercore"),
		tcpostgres.WithPassword("ledgercore"),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)
	s.dsn = dsn
}

func (s *LedgerSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *LedgerSuite) SetupTest() {
	st, closeStore, err := Open(s.ctx, Config{DSN: s.dsn}, zap.NewNop())
	s.Require().NoError(err)

	s.db = st.DB()
	s.s = st
	s.close = closeStore
	s.r = reader.New(st)
	s.o = organizer.New(st)
	dialect := btcdialect.New(btcdialect.Params{
		CoinbaseMaturity: 100,
		MaxMoney:         21000000 * 1e8,
	})
	s.v = validator.New(st, s.r, s.o, dialect)
	s.g = ingress.New(st, nil)
}

func (s *LedgerSuite) TearDownTest() {
	_, err := s.db.ExecContext(s.ctx,
		`TRUNCATE blocks, transactions, transactions_parents, scripts, operations, inputs, outputs, chains RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)
	s.Require().NoError(s.close())
}

// coinbaseBlock builds a one-transaction test block. seed must be unique
// per call across a test so the block hash and its coinbase transaction
// hash never collide with another synthetic block's.
func coinbaseBlock(seed byte, prevHash chainhash.Hash, space, depth, spanLeft, spanRight uint64, ts time.Time) model.Block {
	var merkle, blockHash chainhash.Hash
	merkle[0] = 1
	blockHash[0] = seed

	reward, err := ingress.NewOutput(50, model.Script{Operations: []model.Operation{
		{Opcode: 0x76}, // OP_DUP, a stand-in locking script
	}})
	if err != nil {
		panic(err)
	}

	coinbaseTx := model.Transaction{
		Version: 1,
		Inputs: []model.Input{{
			PreviousOutputHash:  chainhash.Hash{},
			PreviousOutputIndex: 0xffffffff,
			Sequence:            0xffffffff,
		}},
		Outputs: []model.Output{reward},
	}
	coinbaseTx.TransactionHash[0] = seed
	coinbaseTx.TransactionHash[1] = 1

	return model.Block{
		BlockHash:     blockHash,
		PrevBlockHash: prevHash,
		Version:       1,
		Timestamp:     ts,
		BitsHead:      0x1d,
		BitsBody:      0x00ffff,
		MerkleRoot:    merkle,
		Space:         space,
		Depth:         depth,
		Span:          model.Span{Left: spanLeft, Right: spanRight},
		Transactions:  []model.Transaction{coinbaseTx},
	}
}

// seedGenesisChain inserts the chain-0 bootstrap row a deployment would
// pre-load before any block exists; nothing in this package's scope
// creates chain 0 itself, since the Organizer only ever forks new chains
// off of an existing one.
func (s *LedgerSuite) seedGenesisChain() {
	_, err := s.db.ExecContext(s.ctx, `INSERT INTO chains (chain_id, work, depth) VALUES (0, 0, 0)`)
	s.Require().NoError(err)
}

func (s *LedgerSuite) blockStatus(blockID uint64) string {
	var status string
	err := s.db.QueryRowContext(s.ctx, `SELECT status FROM blocks WHERE block_id = $1`, blockID).Scan(&status)
	s.Require().NoError(err)
	return status
}

func (s *LedgerSuite) chainWork(chainID uint64) (float64, uint64) {
	var work float64
	var depth uint64
	err := s.db.QueryRowContext(s.ctx, `SELECT work, depth FROM chains WHERE chain_id = $1`, chainID).Scan(&work, &depth)
	s.Require().NoError(err)
	return work, depth
}

// TestGenesisValidatesInPlace covers the depth-0 base case: a freshly
// ingested root block has no header to check and no non-coinbase
// transactions, so one Validate pass should promote it directly.
func (s *LedgerSuite) TestGenesisValidatesInPlace() {
	s.seedGenesisChain()

	genesis := coinbaseBlock(1, chainhash.Hash{}, 0, 0, 0, 0, time.Unix(1231006505, 0))
	genesisID, err := s.g.InsertOrphanBlock(s.ctx, genesis)
	s.Require().NoError(err)
	s.Equal("orphan", s.blockStatus(genesisID))

	s.Require().NoError(s.o.Organize(s.ctx))
	s.Require().NoError(s.v.Validate(s.ctx))

	s.Equal("valid", s.blockStatus(genesisID))
	work, depth := s.chainWork(0)
	s.Greater(work, 0.0)
	s.Equal(uint64(0), depth)
}

// TestOrphanGraftsThenValidates covers the full pipeline: ingress writes
// an orphan tree root whose prev hash matches an already-known block,
// Organize grafts it into the main tree under that parent, and Validate
// promotes it once its header and coinbase pass consensus.
func (s *LedgerSuite) TestOrphanGraftsThenValidates() {
	s.seedGenesisChain()

	genesis := coinbaseBlock(1, chainhash.Hash{}, 0, 0, 0, 0, time.Unix(1231006505, 0))
	genesisID, err := s.g.InsertOrphanBlock(s.ctx, genesis)
	s.Require().NoError(err)
	s.Require().NoError(s.o.Organize(s.ctx))
	s.Require().NoError(s.v.Validate(s.ctx))
	s.Equal("valid", s.blockStatus(genesisID))

	genesisBlock, err := s.r.ReadBlockInfo(s.ctx, s.db, genesisID)
	s.Require().NoError(err)

	child := coinbaseBlock(2, genesisBlock.BlockHash, 1, 0, 0, 0, time.Unix(1231006605, 0))
	childID, err := s.g.InsertOrphanBlock(s.ctx, child)
	s.Require().NoError(err)
	s.Equal("orphan", s.blockStatus(childID))

	// Before Organize runs, the child is still its own orphan tree
	// (space 1, depth 0) and Validate has nothing new to do at space 0.
	s.Require().NoError(s.v.Validate(s.ctx))
	s.Equal("orphan", s.blockStatus(childID))

	s.Require().NoError(s.o.Organize(s.ctx))

	grafted, err := s.r.ReadBlockInfo(s.ctx, s.db, childID)
	s.Require().NoError(err)
	s.Equal(uint64(0), grafted.Space)
	s.Equal(uint64(1), grafted.Depth)

	s.Require().NoError(s.v.Validate(s.ctx))
	s.Equal("valid", s.blockStatus(childID))

	work, depth := s.chainWork(0)
	s.Equal(uint64(1), depth)
	s.Greater(work, 0.0)
}

// TestConsensusFailureDeletesBranch covers the redesigned rejection
// behavior: a block whose timestamp does not exceed the median time
// past of its ancestors fails CheckHeader, and the Validator deletes its
// branch instead of halting.
func (s *LedgerSuite) TestConsensusFailureDeletesBranch() {
	s.seedGenesisChain()

	genesis := coinbaseBlock(1, chainhash.Hash{}, 0, 0, 0, 0, time.Unix(1231006505, 0))
	genesisID, err := s.g.InsertOrphanBlock(s.ctx, genesis)
	s.Require().NoError(err)
	s.Require().NoError(s.o.Organize(s.ctx))
	s.Require().NoError(s.v.Validate(s.ctx))

	genesisBlock, err := s.r.ReadBlockInfo(s.ctx, s.db, genesisID)
	s.Require().NoError(err)

	// Timestamp does not exceed genesis's own when_created, so median
	// time past rejects it.
	badChild := coinbaseBlock(2, genesisBlock.BlockHash, 1, 0, 0, 0, time.Unix(1231006505, 0))
	childID, err := s.g.InsertOrphanBlock(s.ctx, badChild)
	s.Require().NoError(err)

	s.Require().NoError(s.o.Organize(s.ctx))
	s.Require().NoError(s.v.Validate(s.ctx))

	var count int
	err = s.db.QueryRowContext(s.ctx, `SELECT count(*) FROM blocks WHERE block_id = $1`, childID).Scan(&count)
	s.Require().NoError(err)
	s.Equal(0, count, "rejected branch should have been deleted")

	s.Equal("valid", s.blockStatus(genesisID))
}

// TestBarrierRaisedOnIngress confirms InsertOrphanBlock raises the
// barrier on every successful write, driving the debounced
// organize+validate cycle.
func (s *LedgerSuite) TestBarrierRaisedOnIngress() {
	s.seedGenesisChain()

	cycles := 0
	b := barrier.New(s.ctx, zap.NewNop(), 0, time.Hour, 0, func(context.Context) error {
		cycles++
		return nil
	})
	defer b.Stop()

	g := ingress.New(s.s, b)
	genesis := coinbaseBlock(1, chainhash.Hash{}, 0, 0, 0, 0, time.Unix(1231006505, 0))
	_, err := g.InsertOrphanBlock(s.ctx, genesis)
	s.Require().NoError(err)

	// Clearance of 0 trips on the very first raise, running the cycle
	// inline before RaiseBarrier returns.
	s.Equal(1, cycles)
}
