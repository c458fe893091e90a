package memchain

import (
	"bytes"

	errorsmod "cosmossdk.io/errors"
	"github.com/cometbft/cometbft/crypto/tmhash"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/datachainlab/ibc-relayer/core"
)

// MakeProof commits to the value stored at path on chainID. A nil value proves absence.
func MakeProof(chainID, path string, value []byte) []byte {
	h := tmhash.New()
	h.Write([]byte(chainID))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(value)
	return h.Sum(nil)
}

// verifyState checks a proof made by the chain tracked by clientID that path held value at
// proofHeight. The client must be active and hold a consensus state at proofHeight.
func (x *tx) verifyState(clientID core.ClientID, proofHeight clienttypes.Height, proof []byte, path string, value []byte) (*core.ConsensusState, error) {
	cs, err := getClientState(x.store, clientID)
	if err != nil {
		return nil, err
	}
	latest, err := getConsensusState(x.store, clientID, cs.LatestHeight)
	if err != nil {
		return nil, err
	}
	switch cs.Status(latest, x.time) {
	case core.ClientFrozen:
		return nil, errorsmod.Wrapf(core.ErrClientFrozen, "client %s", clientID)
	case core.ClientExpired:
		return nil, errorsmod.Wrapf(core.ErrClientExpired, "client %s", clientID)
	}
	if proofHeight.GT(cs.LatestHeight) {
		return nil, errorsmod.Wrapf(core.ErrInvalidProof, "client %s at %s has not reached proof height %s", clientID, cs.LatestHeight, proofHeight)
	}
	cons, err := getConsensusState(x.store, clientID, proofHeight)
	if err != nil {
		return nil, errorsmod.Wrapf(core.ErrInvalidProof, "no consensus state of %s at proof height %s", clientID, proofHeight)
	}
	if !bytes.Equal(proof, MakeProof(cs.ChainID, path, value)) {
		return nil, errorsmod.Wrapf(core.ErrInvalidProof, "%s on %s", path, cs.ChainID)
	}
	return cons, nil
}
