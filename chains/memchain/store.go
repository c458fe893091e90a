package memchain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	dbm "github.com/cometbft/cometbft-db"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/gogoproto/proto"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	host "github.com/cosmos/ibc-go/v8/modules/core/24-host"
	mocktypes "github.com/datachainlab/ibc-mock-client/modules/light-clients/xx-mock/types"
)

// Keys outside the ICS-24 layout. They are never proven.
const (
	blockPrefix      = "memchain/blocks/"
	valsetPrefix     = "memchain/valsets/"
	sentPacketPrefix = "memchain/packets/"
	rawAckPrefix     = "memchain/acks/"
	balancePrefix    = "memchain/balances/"
	denomTracePrefix = "memchain/denomtraces/"
	counterPrefix    = "memchain/counters/"
)

func blockKey(height uint64) string {
	return fmt.Sprintf("%s%020d", blockPrefix, height)
}

func valsetKey(height uint64) string {
	return fmt.Sprintf("%s%020d", valsetPrefix, height)
}

func sentPacketKey(port, channel string, seq uint64) string {
	return fmt.Sprintf("%s%s/%s/%d", sentPacketPrefix, port, channel, seq)
}

func rawAckKey(port, channel string, seq uint64) string {
	return fmt.Sprintf("%s%s/%s/%d", rawAckPrefix, port, channel, seq)
}

func balanceKey(address, denom string) string {
	return balancePrefix + address + "/" + denom
}

func denomTraceKey(hash string) string {
	return denomTracePrefix + hash
}

func counterKey(name string) string {
	return counterPrefix + name
}

func nextSequenceSendKey(port, channel string) string {
	return host.NextSequenceSendPath(port, channel)
}

func nextSequenceAckKey(port, channel string) string {
	return host.NextSequenceAckPath(port, channel)
}

// txStore buffers the writes of one transaction on top of the committed store.
// A nil value marks a deletion.
type txStore struct {
	parent dbm.DB
	writes map[string][]byte
}

func newTxStore(parent dbm.DB) *txStore {
	return &txStore{parent: parent, writes: make(map[string][]byte)}
}

func (s *txStore) get(key string) ([]byte, error) {
	if v, ok := s.writes[key]; ok {
		return v, nil
	}
	return s.parent.Get([]byte(key))
}

func (s *txStore) has(key string) (bool, error) {
	v, err := s.get(key)
	return v != nil, err
}

func (s *txStore) set(key string, value []byte) {
	s.writes[key] = value
}

func (s *txStore) delete(key string) {
	s.writes[key] = nil
}

func (s *txStore) commit() error {
	batch := s.parent.NewBatch()
	defer batch.Close()
	for k, v := range s.writes {
		var err error
		if v == nil {
			err = batch.Delete([]byte(k))
		} else {
			err = batch.Set([]byte(k), v)
		}
		if err != nil {
			return err
		}
	}
	return batch.Write()
}

func (s *txStore) getUint64(key string) (uint64, bool, error) {
	bz, err := s.get(key)
	if err != nil || bz == nil {
		return 0, false, err
	}
	return sdk.BigEndianToUint64(bz), true, nil
}

func (s *txStore) setUint64(key string, v uint64) {
	s.set(key, sdk.Uint64ToBigEndian(v))
}

// nextCounter returns the current value of a named counter and increments it.
func (s *txStore) nextCounter(name string) (uint64, error) {
	v, _, err := s.getUint64(counterKey(name))
	if err != nil {
		return 0, err
	}
	s.setUint64(counterKey(name), v+1)
	return v, nil
}

func (s *txStore) getJSON(key string, v any) (bool, error) {
	bz, err := s.get(key)
	if err != nil || bz == nil {
		return false, err
	}
	return true, json.Unmarshal(bz, v)
}

func (s *txStore) setJSON(key string, v any) error {
	bz, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, bz)
	return nil
}

func (s *txStore) getProto(key string, msg proto.Message) (bool, error) {
	bz, err := s.get(key)
	if err != nil || bz == nil {
		return false, err
	}
	return true, proto.Unmarshal(bz, msg)
}

func (s *txStore) setProto(key string, msg proto.Message) error {
	bz, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	s.set(key, bz)
	return nil
}

// setBlock stores the header kept for every height. Light clients of this chain are fed from it.
func (s *txStore) setBlock(height uint64, revision uint64, timestamp uint64, valset []byte) error {
	h := mocktypes.Header{
		Height:    clienttypes.NewHeight(revision, height),
		Timestamp: timestamp,
	}
	if err := s.setProto(blockKey(height), &h); err != nil {
		return err
	}
	s.set(valsetKey(height), valset)
	return nil
}

func (s *txStore) getBlock(height uint64) (*mocktypes.Header, []byte, error) {
	var h mocktypes.Header
	found, err := s.getProto(blockKey(height), &h)
	if err != nil || !found {
		return nil, nil, err
	}
	valset, err := s.get(valsetKey(height))
	if err != nil {
		return nil, nil, err
	}
	return &h, valset, nil
}

// sequencesUnder lists the sequences of the keys "<prefix>/<seq>" in ascending order.
func sequencesUnder(db dbm.DB, prefix string) ([]uint64, error) {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	it, err := db.Iterator([]byte(prefix), prefixEnd([]byte(prefix)))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var seqs []uint64
	for ; it.Valid(); it.Next() {
		rest := strings.TrimPrefix(string(it.Key()), prefix)
		seq, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
