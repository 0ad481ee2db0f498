package access

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/reflex/internal/types"
)

func addr() types.Address {
	return solana.NewWallet().PublicKey()
}

func TestAuthorizeOnlyOwner(t *testing.T) {
	owner, other := addr(), addr()
	o := NewOwnership(owner)

	g, err := o.Authorize(owner)
	require.NoError(t, err)
	assert.Equal(t, owner, g.Holder())
	assert.NoError(t, o.Check(g))

	_, err = o.Authorize(other)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, o.Check(Grant{}), ErrUnauthorized)
}

func TestGrantFromAnotherOwnership(t *testing.T) {
	owner := addr()
	a, b := NewOwnership(owner), NewOwnership(owner)

	g, err := a.Authorize(owner)
	require.NoError(t, err)
	assert.ErrorIs(t, b.Check(g), ErrUnauthorized)
}

func TestTransferRevokesGrants(t *testing.T) {
	owner, next := addr(), addr()
	o := NewOwnership(owner)
	g, err := o.Authorize(owner)
	require.NoError(t, err)

	assert.ErrorIs(t, o.Transfer(g, types.ZeroAddress), ErrInvalidOwner)
	require.NoError(t, o.Transfer(g, next))
	assert.Equal(t, next, o.Owner())

	assert.ErrorIs(t, o.Check(g), ErrUnauthorized)
	assert.ErrorIs(t, o.Transfer(g, owner), ErrUnauthorized)

	g2, err := o.Authorize(next)
	require.NoError(t, err)
	assert.NoError(t, o.Check(g2))
}

func TestTransferBackDoesNotRevive(t *testing.T) {
	owner, next := addr(), addr()
	o := NewOwnership(owner)
	old, err := o.Authorize(owner)
	require.NoError(t, err)
	require.NoError(t, o.Transfer(old, next))

	g, err := o.Authorize(next)
	require.NoError(t, err)
	require.NoError(t, o.Transfer(g, owner))

	assert.ErrorIs(t, o.Check(old), ErrUnauthorized)
}

func TestRenounce(t *testing.T) {
	owner := addr()
	o := NewOwnership(owner)
	g, err := o.Authorize(owner)
	require.NoError(t, err)

	require.NoError(t, o.Renounce(g))
	assert.True(t, o.Owner().IsZero())
	assert.ErrorIs(t, o.Check(g), ErrUnauthorized)

	_, err = o.Authorize(owner)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = o.Authorize(types.ZeroAddress)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
