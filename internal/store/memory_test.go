package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryReadMissingKey(t *testing.T) {
	a := NewMemoryStore().Open()

	_, err := a.Read(context.Background(), MessagesKey)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryWriteThenRead(t *testing.T) {
	a := NewMemoryStore().Open()
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, MessagesKey, []byte(`{"R1":[]}`)))

	doc, err := a.Read(ctx, MessagesKey)
	require.NoError(t, err)
	require.JSONEq(t, `{"R1":[]}`, string(doc))
}

func TestMemoryExternalChangeDelivery(t *testing.T) {
	shared := NewMemoryStore()
	tabA := shared.Open()
	tabB := shared.Open()
	ctx := context.Background()

	var aSaw, bSaw [][]byte
	cancelA, err := tabA.Subscribe(MessagesKey, func(doc []byte) { aSaw = append(aSaw, doc) })
	require.NoError(t, err)
	defer cancelA()
	cancelB, err := tabB.Subscribe(MessagesKey, func(doc []byte) { bSaw = append(bSaw, doc) })
	require.NoError(t, err)
	defer cancelB()

	require.NoError(t, tabA.Write(ctx, MessagesKey, []byte(`{"R1":[]}`)))

	require.Empty(t, aSaw, "writes must not self-trigger")
	require.Len(t, bSaw, 1)
	require.JSONEq(t, `{"R1":[]}`, string(bSaw[0]))

	// The write is visible to reads from the other context.
	doc, err := tabB.Read(ctx, MessagesKey)
	require.NoError(t, err)
	require.JSONEq(t, `{"R1":[]}`, string(doc))
}

func TestMemorySubscribeCancel(t *testing.T) {
	shared := NewMemoryStore()
	tabA := shared.Open()
	tabB := shared.Open()

	var calls int
	cancel, err := tabB.Subscribe(MessagesKey, func([]byte) { calls++ })
	require.NoError(t, err)
	cancel()

	require.NoError(t, tabA.Write(context.Background(), MessagesKey, []byte(`{}`)))
	require.Zero(t, calls)
}

func TestMemoryKeysAreIndependent(t *testing.T) {
	shared := NewMemoryStore()
	tabA := shared.Open()
	tabB := shared.Open()

	var calls int
	cancel, err := tabB.Subscribe(TypingKey, func([]byte) { calls++ })
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, tabA.Write(context.Background(), MessagesKey, []byte(`{}`)))
	require.Zero(t, calls)
}
