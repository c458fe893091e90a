package core_test

import (
	"context"
	"testing"
	"time"

	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/datachainlab/ibc-relayer/core"
	"github.com/stretchr/testify/require"
)

func TestCreateClientsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := newTransferPath()
	src, dst := env.endpoints(t, path)

	require.NoError(t, core.CreateClients(ctx, pathName, src, dst))
	require.Equal(t, core.ClientID("mock-client-0"), path.Src.ClientID)
	require.Equal(t, core.ClientID("mock-client-0"), path.Dst.ClientID)

	height := env.a.AdvanceBlocks(0)
	require.NoError(t, core.CreateClients(ctx, pathName, src, dst))
	require.Equal(t, core.ClientID("mock-client-0"), path.Src.ClientID)
	require.Equal(t, height, env.a.AdvanceBlocks(0), "no transaction was submitted")

	_, err := env.a.QueryClientState(latest(t, env.a), "mock-client-1")
	require.ErrorIs(t, err, core.ErrClientNotFound)

	cs, err := env.a.QueryClientState(latest(t, env.a), path.Src.ClientID)
	require.NoError(t, err)
	require.Equal(t, chainB, cs.ChainID)
	require.Equal(t, testClientSettings().TrustingPeriod, cs.TrustingPeriod)
}

func TestForeignClientCreateKeepsExisting(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src, dst := env.endpoints(t, newTransferPath())

	fc := core.NewForeignClient(pathName, src, dst)
	id, err := fc.Create(ctx)
	require.NoError(t, err)
	require.Equal(t, core.ClientID("mock-client-0"), id)

	again, err := fc.Create(ctx)
	require.NoError(t, err)
	require.Equal(t, id, again)

	status, err := fc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, core.ClientActive, status)
}

func TestForeignClientUpdate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src, dst := env.endpoints(t, newTransferPath())
	require.NoError(t, core.CreateClients(ctx, pathName, src, dst))

	fc := core.NewForeignClient(pathName, src, dst)
	target := env.b.AdvanceBlocks(3)
	require.NoError(t, fc.Update(ctx))

	cs, err := env.a.QueryClientState(latest(t, env.a), fc.ClientID())
	require.NoError(t, err)
	require.Equal(t, target, cs.LatestHeight)

	// already current
	msgs, err := fc.BuildUpdate(ctx)
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.NoError(t, fc.Update(ctx))

	// a consensus state below the client's height cannot be added anymore
	_, err = fc.BuildUpdateTo(ctx, clienttypes.NewHeight(target.RevisionNumber, target.RevisionHeight-1))
	require.ErrorIs(t, err, core.ErrQuery)

	next := env.b.AdvanceBlocks(1)
	msgs, err = fc.BuildUpdateTo(ctx, next)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	update := msgs[0].(*core.MsgUpdateClient)
	require.Equal(t, next, update.Header.Height)
	require.Equal(t, target, update.Header.TrustedHeight)
}

func TestForeignClientRejectsRotatedValidators(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src, dst := env.endpoints(t, newTransferPath())
	require.NoError(t, core.CreateClients(ctx, pathName, src, dst))

	env.b.RotateValidators()
	env.b.AdvanceBlocks(1)

	err := core.NewForeignClient(pathName, src, dst).Update(ctx)
	require.ErrorIs(t, err, core.ErrUntrustedHeader)
	require.Equal(t, core.ClassProtocolViolation, core.ClassOf(err))
	require.False(t, core.IsRetryable(err))
}

func TestForeignClientExpires(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src, dst := env.endpoints(t, newTransferPath())
	require.NoError(t, core.CreateClients(ctx, pathName, src, dst))

	env.clock.Advance(testClientSettings().TrustingPeriod + time.Minute)
	env.a.AdvanceBlocks(1)
	env.b.AdvanceBlocks(1)

	fc := core.NewForeignClient(pathName, src, dst)
	status, err := fc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, core.ClientExpired, status)
	require.ErrorIs(t, fc.Update(ctx), core.ErrClientExpired)
}

func TestForeignClientUpdateRetriesUnavailableHost(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src, dst := env.endpoints(t, newTransferPath())
	require.NoError(t, core.CreateClients(ctx, pathName, src, dst))

	target := env.b.AdvanceBlocks(2)
	env.a.FailQueries(2)
	require.NoError(t, core.NewForeignClient(pathName, src, dst).Update(ctx))

	cs, err := env.a.QueryClientState(latest(t, env.a), src.End.ClientID)
	require.NoError(t, err)
	require.Equal(t, target, cs.LatestHeight)
}

func TestUpdateClients(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src, dst := env.endpoints(t, newTransferPath())
	require.NoError(t, core.CreateClients(ctx, pathName, src, dst))

	env.a.AdvanceBlocks(2)
	env.b.AdvanceBlocks(2)
	require.NoError(t, core.UpdateClients(ctx, src, dst))

	for _, ep := range []struct {
		host   core.ChainHandle
		client core.ClientID
	}{
		{env.a, src.End.ClientID},
		{env.b, dst.End.ClientID},
	} {
		cs, err := ep.host.QueryClientState(latest(t, ep.host), ep.client)
		require.NoError(t, err)
		require.True(t, cs.LatestHeight.GT(clienttypes.NewHeight(0, 3)))
	}
}
