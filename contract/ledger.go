package contract

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/iov-one/drugchain/x/drug"
	"github.com/iov-one/drugchain/x/metrics"
	"github.com/iov-one/drugchain/x/participant"
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/app"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/store"
	"github.com/iov-one/weave/x/utils"
	"github.com/tendermint/tendermint/libs/log"
)

// DefaultValidName is the participant name rule used when none is given.
const DefaultValidName = `^[^\x00-\x1f]{1,128}$`

// Result is the outcome of a single call. Value is set only on success and
// Error only on failure.
type Result struct {
	Success bool        `json:"success"`
	Value   interface{} `json:"value,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Ledger processes named calls against the drug and participant registries.
// Calls are serialized and each call is executed in a new block.
type Ledger struct {
	mu sync.Mutex

	db       weave.CacheableKVStore
	handler  weave.Handler
	auth     callerAuth
	dir      *directory
	deployer string

	chainID   string
	height    int64
	now       func() time.Time
	validName string
	logger    log.Logger
	metrics   *metrics.Metrics
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithChainID sets the chain ID reported to the handlers.
func WithChainID(id string) Option {
	return func(l *Ledger) { l.chainID = id }
}

// WithClock sets the source of block time. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger used for every call.
func WithLogger(logger log.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMetrics enables transaction metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithValidName sets the participant name rule. It must be a regular
// expression anchored with ^ and $.
func WithValidName(rx string) Option {
	return func(l *Ledger) { l.validName = rx }
}

// NewLedger returns a ledger with empty registries. The deployer principal
// owns the participant registry configuration and is always allowed to
// verify participants.
func NewLedger(deployer string, opts ...Option) (*Ledger, error) {
	if deployer == "" {
		return nil, errors.Wrap(errors.ErrEmpty, "deployer")
	}
	l := &Ledger{
		db:        store.MemStore(),
		dir:       newDirectory(),
		deployer:  deployer,
		chainID:   "drugchain",
		now:       time.Now,
		validName: DefaultValidName,
		logger:    log.NewNopLogger(),
	}
	for _, fn := range opts {
		fn(l)
	}

	r := app.NewRouter()
	participant.RegisterRoutes(r, l.auth)
	drug.RegisterRoutes(r, l.auth, participant.NewRegistry())
	l.handler = app.ChainDecorators(
		utils.NewLogging(),
		utils.NewRecovery(),
		metrics.NewDecorator(l.metrics),
		utils.NewSavepoint().OnDeliver(),
	).WithHandler(r)

	if err := l.genesis(); err != nil {
		return nil, errors.Wrap(err, "genesis")
	}
	return l, nil
}

func (l *Ledger) genesis() error {
	owner := PrincipalAddress(l.deployer)
	raw, err := json.Marshal(map[string]interface{}{
		"conf": map[string]interface{}{
			"migration": map[string]interface{}{
				"admin": owner,
			},
			"participant": map[string]interface{}{
				"metadata":   map[string]int{"schema": 1},
				"owner":      owner,
				"valid_name": l.validName,
			},
		},
		"initialize_schema": []map[string]interface{}{
			{"pkg": "participant", "ver": 1},
			{"pkg": "drug", "ver": 1},
		},
	})
	if err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	var opts weave.Options
	if err := json.Unmarshal(raw, &opts); err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	ini := app.ChainInitializers(&migration.Initializer{}, &participant.Initializer{})
	if err := ini.FromGenesis(opts, weave.GenesisParams{}, l.db); err != nil {
		return err
	}
	l.dir.remember(l.deployer)
	return nil
}

// Deployer returns the principal that owns the ledger configuration.
func (l *Ledger) Deployer() string {
	return l.deployer
}

// ChainID returns the chain ID reported to the handlers.
func (l *Ledger) ChainID() string {
	return l.chainID
}

// Height returns the height of the last processed block.
func (l *Ledger) Height() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

// Call executes the named operation on behalf of the caller principal.
// A failed call does not change the state of the ledger.
func (l *Ledger) Call(caller, operation string, args ...interface{}) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.height++
	start := time.Now()
	logger := l.logger.With("op", operation, "height", l.height)

	value, err := l.call(caller, operation, args)
	if err != nil {
		code := ErrorCode(err)
		logger.Debug("call failed", "caller", caller, "code", code, "err", err)
		return Result{Error: code}
	}
	logger.Debug("call", "caller", caller, "duration", time.Since(start))
	return Result{Success: true, Value: value}
}

func (l *Ledger) call(caller, operation string, args []interface{}) (interface{}, error) {
	op, ok := operations[operation]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownOperation, "%q", operation)
	}
	if len(args) != len(op.Params) {
		return nil, errors.Wrapf(errors.ErrInput, "%s expects %d arguments, got %d", operation, len(op.Params), len(args))
	}
	if caller == "" && !op.ReadOnly {
		return nil, errors.Wrap(errors.ErrUnauthorized, "caller principal required")
	}
	return op.run(l, caller, args)
}

// context returns the context of the block currently being processed.
func (l *Ledger) context(caller weave.Condition) weave.Context {
	ctx := context.Background()
	ctx = weave.WithHeight(ctx, l.height)
	ctx = weave.WithChainID(ctx, l.chainID)
	ctx = weave.WithBlockTime(ctx, l.now().UTC())
	ctx = weave.WithLogger(ctx, l.logger)
	return withCaller(ctx, caller)
}

// deliver runs a message signed by the caller through the check and the
// deliver phase, the way a transaction included in a block is processed.
// State is written only if both phases succeed. On success the caller and
// given related principals are recorded in the directory.
func (l *Ledger) deliver(caller string, msg weave.Msg, related ...string) (*weave.DeliverResult, error) {
	tx := &callTx{msg: msg}
	ctx := l.context(PrincipalCondition(caller))

	check := l.db.CacheWrap()
	_, err := l.handler.Check(ctx, check, tx)
	check.Discard()
	if err != nil {
		return nil, err
	}

	cache := l.db.CacheWrap()
	res, err := l.handler.Deliver(ctx, cache, tx)
	if err != nil {
		cache.Discard()
		return nil, err
	}
	if err := cache.Write(); err != nil {
		return nil, errors.Wrap(err, "cannot write state")
	}
	l.dir.remember(append(related, caller)...)
	return res, nil
}

// callTx is a transaction carrying a single message. It is never
// serialized.
type callTx struct {
	msg weave.Msg
}

var _ weave.Tx = (*callTx)(nil)

func (tx *callTx) GetMsg() (weave.Msg, error) {
	return tx.msg, nil
}

func (tx *callTx) Marshal() ([]byte, error) {
	return nil, errors.Wrap(errors.ErrHuman, "call transaction is not serializable")
}

func (tx *callTx) Unmarshal([]byte) error {
	return errors.Wrap(errors.ErrHuman, "call transaction is not serializable")
}
