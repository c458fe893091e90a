package memchain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	dbm "github.com/cometbft/cometbft-db"
	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/cometbft/cometbft/crypto/tmhash"
	sdk "github.com/cosmos/cosmos-sdk/types"
	transfertypes "github.com/cosmos/ibc-go/v8/modules/apps/transfer/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	conntypes "github.com/cosmos/ibc-go/v8/modules/core/03-connection/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	host "github.com/cosmos/ibc-go/v8/modules/core/24-host"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/datachainlab/ibc-relayer/log"
)

// Chain is an in-process chain hosting IBC clients, connections, channels and an ICS-20
// transfer application. Every submission is included in a block of its own. State is kept
// for the latest height only; queries at older heights read the latest state.
type Chain struct {
	config   Config
	clock    Clock
	revision uint64

	mu       sync.RWMutex
	db       dbm.DB
	height   uint64
	lastTime time.Time
	epoch    uint64
	subs     map[int]*subscription
	nextSub  int
	apps     map[core.PortID]application

	queryFailures  atomic.Int32
	submitFailures atomic.Int32
}

var _ core.ChainHandle = (*Chain)(nil)

type subscription struct {
	filter core.EventFilter
	ch     chan core.EventBatch
	done   chan struct{}
}

// New starts a chain at height 1 with the genesis balances of cfg.
func New(cfg Config, clock Clock) (*Chain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig(cfg.ChainID).EventBuffer
	}
	if clock == nil {
		clock = NewManualClock(cfg.GenesisTime)
	}
	c := &Chain{
		config:   cfg,
		clock:    clock,
		revision: cfg.Revision(),
		db:       dbm.NewMemDB(),
		subs:     make(map[int]*subscription),
		apps: map[core.PortID]application{
			core.PortID(transfertypes.PortID): transferApp{},
		},
	}

	s := newTxStore(c.db)
	for _, b := range cfg.Genesis {
		coins, err := sdk.ParseCoinsNormalized(b.Coins)
		if err != nil {
			return nil, err
		}
		for _, coin := range coins {
			if err := addBalance(s, b.Address, coin); err != nil {
				return nil, err
			}
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.commitBlock(s, nil); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chain) logger() *log.RelayLogger {
	return log.GetLogger().WithChain(c.config.ChainID).WithModule("memchain")
}

func (c *Chain) ChainID() string {
	return c.config.ChainID
}

func (c *Chain) Address() string {
	return c.config.Account
}

func (c *Chain) Config() Config {
	return c.config
}

func (c *Chain) validatorSetHash(epoch uint64) []byte {
	return tmhash.Sum([]byte(fmt.Sprintf("%s/validators/%d", c.config.ChainID, epoch)))
}

func (c *Chain) heightOf(h uint64) clienttypes.Height {
	return clienttypes.NewHeight(c.revision, h)
}

// nextBlock returns the height and time of the block being produced. Caller holds mu.
func (c *Chain) nextBlock() (clienttypes.Height, time.Time) {
	t := c.clock.Advance(c.config.BlockTime).UTC()
	if !t.After(c.lastTime) {
		t = c.lastTime.Add(time.Millisecond)
	}
	return c.heightOf(c.height + 1), t
}

// commitBlock writes s as the next block and feeds the events to the subscribers. Caller holds mu.
func (c *Chain) commitBlock(s *txStore, events []abci.Event) (clienttypes.Height, error) {
	height, t := c.nextBlock()
	return height, c.commitBlockAt(s, height, t, events)
}

func (c *Chain) commitBlockAt(s *txStore, height clienttypes.Height, t time.Time, events []abci.Event) error {
	if err := s.setBlock(height.RevisionHeight, c.revision, uint64(t.UnixNano()), c.validatorSetHash(c.epoch)); err != nil {
		return err
	}
	if err := s.commit(); err != nil {
		return err
	}
	c.height = height.RevisionHeight
	c.lastTime = t

	all := append([]abci.Event{{
		Type: core.EventTypeNewBlock,
		Attributes: []abci.EventAttribute{
			{Key: core.AttributeKeyHeight, Value: height.String()},
			{Key: core.AttributeKeyBlockTime, Value: t.Format(time.RFC3339Nano)},
		},
	}}, events...)
	parsed, err := core.ParseEvents(all)
	if err != nil {
		return err
	}
	c.publish(height, parsed)
	return nil
}

func (c *Chain) publish(height clienttypes.Height, events []core.ChainEvent) {
	for id, sub := range c.subs {
		batch := core.EventBatch{ChainID: c.config.ChainID, Height: height}
		for _, ev := range events {
			if sub.filter.Match(ev) {
				batch.Events = append(batch.Events, ev)
			}
		}
		select {
		case sub.ch <- batch:
		default:
			c.logger().Warn("dropping slow subscriber", "subscription", id, "height", height.String())
			c.closeSubscription(id)
		}
	}
}

// closeSubscription ends a subscription. Caller holds mu.
func (c *Chain) closeSubscription(id int) {
	sub, ok := c.subs[id]
	if !ok {
		return
	}
	delete(c.subs, id)
	close(sub.done)
	close(sub.ch)
}

func (c *Chain) Subscribe(ctx context.Context, filter core.EventFilter) (<-chan core.EventBatch, error) {
	if err := c.injectedFailure(&c.queryFailures); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	sub := &subscription{
		filter: filter,
		ch:     make(chan core.EventBatch, c.config.EventBuffer),
		done:   make(chan struct{}),
	}
	c.subs[id] = sub
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.closeSubscription(id)
			c.mu.Unlock()
		case <-sub.done:
		}
	}()
	return sub.ch, nil
}

func (c *Chain) Submit(ctx context.Context, msgs []core.Msg) (*core.TxResult, error) {
	if c.config.TxDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.config.TxDelay):
		}
	}
	if err := c.injectedFailure(&c.submitFailures); err != nil {
		return nil, err
	}
	envs, err := core.WrapAll(msgs)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	height, t := c.nextBlock()
	x := &tx{chain: c, store: newTxStore(c.db), height: height, time: t}
	router := x.router()

	var (
		events []abci.Event
		txErr  error
	)
	for i, env := range envs {
		evs, err := router.Dispatch(ctx, env)
		if err != nil {
			txErr = errorsmod.Wrapf(err, "message %d (%s)", i, env.Msg().Type())
			break
		}
		events = append(events, evs...)
	}

	res := &core.TxResult{Height: height, TxHash: txHash(height, msgs)}
	store := x.store
	if txErr != nil {
		// a failed transaction still takes a block but changes nothing
		store = newTxStore(c.db)
		events = nil
		res.Codespace, res.Code, res.Log = errorsmod.ABCIInfo(txErr, false)
		c.logger().DebugContext(ctx, "transaction failed", "height", height.String(), "code", res.Code, "log", res.Log)
	}
	if err := c.commitBlockAt(store, height, t, events); err != nil {
		return nil, err
	}
	if res.Events, err = core.ParseEvents(events); err != nil {
		return nil, err
	}
	return res, nil
}

func txHash(height clienttypes.Height, msgs []core.Msg) string {
	var b strings.Builder
	b.WriteString(height.String())
	for _, m := range msgs {
		b.WriteString("/")
		b.WriteString(m.Type())
	}
	return fmt.Sprintf("%X", tmhash.Sum([]byte(b.String())))
}

func (c *Chain) injectedFailure(counter *atomic.Int32) error {
	for {
		n := counter.Load()
		if n <= 0 {
			return nil
		}
		if counter.CompareAndSwap(n, n-1) {
			return errorsmod.Wrapf(core.ErrQuery, "%s is unavailable", c.config.ChainID)
		}
	}
}

// view returns a read view of the committed state. Caller holds mu for reading.
func (c *Chain) view(qctx core.QueryContext) (*txStore, error) {
	if err := c.injectedFailure(&c.queryFailures); err != nil {
		return nil, err
	}
	if h := qctx.Height(); h.RevisionNumber == c.revision && h.RevisionHeight > c.height {
		return nil, errorsmod.Wrapf(core.ErrQuery, "height %s is not reached on %s", h, c.config.ChainID)
	}
	return newTxStore(c.db), nil
}

func (c *Chain) LatestHeight(ctx context.Context) (clienttypes.Height, error) {
	if err := c.injectedFailure(&c.queryFailures); err != nil {
		return clienttypes.Height{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heightOf(c.height), nil
}

func (c *Chain) QueryLatestHeader(ctx context.Context) (*core.Header, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.header(c.height)
}

func (c *Chain) QueryHeader(ctx context.Context, height clienttypes.Height) (*core.Header, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if height.RevisionNumber != c.revision || height.RevisionHeight == 0 || height.RevisionHeight > c.height {
		return nil, errorsmod.Wrapf(core.ErrNotFound, "no header at %s on %s", height, c.config.ChainID)
	}
	return c.header(height.RevisionHeight)
}

// header builds the header of a committed height. Caller holds mu.
func (c *Chain) header(height uint64) (*core.Header, error) {
	s := newTxStore(c.db)
	mh, valset, err := s.getBlock(height)
	if err != nil {
		return nil, errorsmod.Wrap(core.ErrQuery, err.Error())
	}
	if mh == nil {
		return nil, errorsmod.Wrapf(core.ErrNotFound, "no block at height %d", height)
	}
	next := c.validatorSetHash(c.epoch)
	if height < c.height {
		if _, next, err = s.getBlock(height + 1); err != nil {
			return nil, errorsmod.Wrap(core.ErrQuery, err.Error())
		}
	}
	return &core.Header{
		ChainID:            c.config.ChainID,
		Height:             mh.Height,
		Time:               time.Unix(0, int64(mh.Timestamp)).UTC(),
		ValidatorsHash:     valset,
		NextValidatorsHash: next,
	}, nil
}

func (c *Chain) QueryClientState(qctx core.QueryContext, clientID core.ClientID) (*core.ClientState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, err := c.view(qctx)
	if err != nil {
		return nil, err
	}
	return getClientState(s, clientID)
}

func (c *Chain) QueryConsensusState(qctx core.QueryContext, clientID core.ClientID, height clienttypes.Height) (*core.ConsensusState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, err := c.view(qctx)
	if err != nil {
		return nil, err
	}
	return getConsensusState(s, clientID, height)
}

func (c *Chain) QueryConnection(qctx core.QueryContext, connectionID core.ConnectionID) (*core.ConnectionEnd, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, err := c.view(qctx)
	if err != nil {
		return nil, err
	}
	return getConnection(s, connectionID)
}

func (c *Chain) QueryChannel(qctx core.QueryContext, portID core.PortID, channelID core.ChannelID) (*core.ChannelEnd, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, err := c.view(qctx)
	if err != nil {
		return nil, err
	}
	return getChannel(s, portID, channelID)
}

func (c *Chain) QueryPacketCommitment(qctx core.QueryContext, portID core.PortID, channelID core.ChannelID, seq uint64) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, err := c.view(qctx)
	if err != nil {
		return nil, err
	}
	return s.get(core.PacketCommitmentPath(portID, channelID, seq))
}

func (c *Chain) QueryPacketCommitments(qctx core.QueryContext, portID core.PortID, channelID core.ChannelID) ([]uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, err := c.view(qctx); err != nil {
		return nil, err
	}
	return sequencesUnder(c.db, host.PacketCommitmentPrefixPath(string(portID), string(channelID)))
}

func (c *Chain) QueryPacketReceipt(qctx core.QueryContext, portID core.PortID, channelID core.ChannelID, seq uint64) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, err := c.view(qctx)
	if err != nil {
		return false, err
	}
	return s.has(core.PacketReceiptPath(portID, channelID, seq))
}

func (c *Chain) QueryPacketAcknowledgement(qctx core.QueryContext, portID core.PortID, channelID core.ChannelID, seq uint64) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, err := c.view(qctx)
	if err != nil {
		return nil, err
	}
	return s.get(rawAckKey(string(portID), string(channelID), seq))
}

func (c *Chain) QueryNextSequenceSend(qctx core.QueryContext, portID core.PortID, channelID core.ChannelID) (uint64, error) {
	return c.querySequence(qctx, portID, channelID, nextSequenceSendKey(string(portID), string(channelID)))
}

func (c *Chain) QueryNextSequenceReceive(qctx core.QueryContext, portID core.PortID, channelID core.ChannelID) (uint64, error) {
	return c.querySequence(qctx, portID, channelID, core.NextSequenceRecvPath(portID, channelID))
}

func (c *Chain) querySequence(qctx core.QueryContext, portID core.PortID, channelID core.ChannelID, key string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, err := c.view(qctx)
	if err != nil {
		return 0, err
	}
	seq, found, err := s.getUint64(key)
	if err != nil {
		return 0, errorsmod.Wrap(core.ErrQuery, err.Error())
	}
	if !found {
		return 0, errorsmod.Wrapf(core.ErrChannelNotFound, "%s/%s on %s", portID, channelID, c.config.ChainID)
	}
	return seq, nil
}

func (c *Chain) QuerySentPackets(qctx core.QueryContext, portID core.PortID, channelID core.ChannelID, seqs []uint64) ([]core.Packet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, err := c.view(qctx)
	if err != nil {
		return nil, err
	}
	packets := make([]core.Packet, 0, len(seqs))
	for _, seq := range seqs {
		var p chantypes.Packet
		found, err := s.getProto(sentPacketKey(string(portID), string(channelID), seq), &p)
		if err != nil {
			return nil, errorsmod.Wrap(core.ErrQuery, err.Error())
		}
		if !found {
			return nil, errorsmod.Wrapf(core.ErrNotFound, "packet %s/%s#%d on %s", portID, channelID, seq, c.config.ChainID)
		}
		packets = append(packets, core.PacketFromProto(p))
	}
	return packets, nil
}

func (c *Chain) QueryBalance(qctx core.QueryContext, address string, denom string) (sdk.Coin, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, err := c.view(qctx)
	if err != nil {
		return sdk.Coin{}, err
	}
	amt, err := getBalance(s, address, denom)
	if err != nil {
		return sdk.Coin{}, errorsmod.Wrap(core.ErrQuery, err.Error())
	}
	return sdk.NewCoin(denom, amt), nil
}

// ProveState proves the value currently stored at path, or its absence, at the latest height.
func (c *Chain) ProveState(qctx core.QueryContext, path string) ([]byte, clienttypes.Height, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, err := c.view(qctx)
	if err != nil {
		return nil, clienttypes.Height{}, err
	}
	value, err := s.get(path)
	if err != nil {
		return nil, clienttypes.Height{}, errorsmod.Wrap(core.ErrQuery, err.Error())
	}
	return MakeProof(c.config.ChainID, path, value), c.heightOf(c.height), nil
}

// AdvanceBlocks commits n empty blocks.
func (c *Chain) AdvanceBlocks(n int) clienttypes.Height {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n; i++ {
		if _, err := c.commitBlock(newTxStore(c.db), nil); err != nil {
			panic(err)
		}
	}
	return c.heightOf(c.height)
}

// ProduceBlocks commits an empty block every BlockTime until ctx is done, so that the chain
// advances without transactions when it runs next to a relay service.
func (c *Chain) ProduceBlocks(ctx context.Context) {
	ticker := time.NewTicker(c.config.BlockTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h := c.AdvanceBlocks(1)
			c.logger().DebugContext(ctx, "block produced", "height", h.String())
		}
	}
}

// Mint credits coin to address in a new block.
func (c *Chain) Mint(address string, coin sdk.Coin) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := newTxStore(c.db)
	if err := addBalance(s, address, coin); err != nil {
		return err
	}
	_, err := c.commitBlock(s, nil)
	return err
}

// RotateValidators replaces the validator set from the next block on. Light clients
// trusting the old set can no longer be updated past the rotation.
func (c *Chain) RotateValidators() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
}

// BreakSubscriptions closes every open event feed, as a dropped connection would.
func (c *Chain) BreakSubscriptions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.subs {
		c.closeSubscription(id)
	}
}

// FailQueries makes the next n queries or subscriptions fail with a query error.
func (c *Chain) FailQueries(n int) {
	c.queryFailures.Store(int32(n))
}

// FailSubmissions makes the next n submissions fail before they reach a block.
func (c *Chain) FailSubmissions(n int) {
	c.submitFailures.Store(int32(n))
}

func getClientState(s *txStore, clientID core.ClientID) (*core.ClientState, error) {
	var cs core.ClientState
	found, err := s.getJSON(host.FullClientStatePath(string(clientID)), &cs)
	if err != nil {
		return nil, errorsmod.Wrap(core.ErrQuery, err.Error())
	}
	if !found {
		return nil, errorsmod.Wrapf(core.ErrClientNotFound, "client %s", clientID)
	}
	return &cs, nil
}

func getConsensusState(s *txStore, clientID core.ClientID, height clienttypes.Height) (*core.ConsensusState, error) {
	var cons core.ConsensusState
	found, err := s.getJSON(host.FullConsensusStatePath(string(clientID), height), &cons)
	if err != nil {
		return nil, errorsmod.Wrap(core.ErrQuery, err.Error())
	}
	if !found {
		return nil, errorsmod.Wrapf(core.ErrNotFound, "consensus state of %s at %s", clientID, height)
	}
	return &cons, nil
}

func getConnection(s *txStore, connectionID core.ConnectionID) (*core.ConnectionEnd, error) {
	var pc conntypes.ConnectionEnd
	found, err := s.getProto(core.ConnectionPath(connectionID), &pc)
	if err != nil {
		return nil, errorsmod.Wrap(core.ErrQuery, err.Error())
	}
	if !found {
		return nil, errorsmod.Wrapf(core.ErrConnectionNotFound, "connection %s", connectionID)
	}
	return core.ConnectionEndFromProto(pc)
}

func setConnection(s *txStore, connectionID core.ConnectionID, end *core.ConnectionEnd) error {
	bz, err := end.CommitmentBytes()
	if err != nil {
		return err
	}
	s.set(core.ConnectionPath(connectionID), bz)
	return nil
}

func getChannel(s *txStore, portID core.PortID, channelID core.ChannelID) (*core.ChannelEnd, error) {
	var pc chantypes.Channel
	found, err := s.getProto(core.ChannelPath(portID, channelID), &pc)
	if err != nil {
		return nil, errorsmod.Wrap(core.ErrQuery, err.Error())
	}
	if !found {
		return nil, errorsmod.Wrapf(core.ErrChannelNotFound, "channel %s/%s", portID, channelID)
	}
	return core.ChannelEndFromProto(pc)
}

func setChannel(s *txStore, portID core.PortID, channelID core.ChannelID, end *core.ChannelEnd) error {
	bz, err := end.CommitmentBytes()
	if err != nil {
		return err
	}
	s.set(core.ChannelPath(portID, channelID), bz)
	return nil
}

func getBalance(s *txStore, address, denom string) (sdkmath.Int, error) {
	bz, err := s.get(balanceKey(address, denom))
	if err != nil || bz == nil {
		return sdkmath.ZeroInt(), err
	}
	var amt sdkmath.Int
	if err := amt.Unmarshal(bz); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amt, nil
}

func setBalance(s *txStore, address, denom string, amt sdkmath.Int) error {
	if amt.IsZero() {
		s.delete(balanceKey(address, denom))
		return nil
	}
	bz, err := amt.Marshal()
	if err != nil {
		return err
	}
	s.set(balanceKey(address, denom), bz)
	return nil
}

func addBalance(s *txStore, address string, coin sdk.Coin) error {
	amt, err := getBalance(s, address, coin.Denom)
	if err != nil {
		return err
	}
	return setBalance(s, address, coin.Denom, amt.Add(coin.Amount))
}

func subBalance(s *txStore, address string, coin sdk.Coin) error {
	amt, err := getBalance(s, address, coin.Denom)
	if err != nil {
		return err
	}
	if amt.LT(coin.Amount) {
		return errorsmod.Wrapf(core.ErrInsufficientFunds, "%s has %s%s, needs %s", address, amt, coin.Denom, coin)
	}
	return setBalance(s, address, coin.Denom, amt.Sub(coin.Amount))
}
