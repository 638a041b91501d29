package service

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := Generate()
		require.NoError(t, err)
		require.Len(t, code, 5)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 10000)
		assert.LessOrEqual(t, n, 99999)
	}
}

func sequenceDraw(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		code := codes[i%len(codes)]
		i++
		return code, nil
	}
}

func TestCodeGenerator_EnsureUnique(t *testing.T) {
	t.Run("returns first free code", func(t *testing.T) {
		store := new(mockInvitationRepo)
		store.On("LockCode", mock.Anything, mock.Anything).Return(nil)
		store.On("ExistsRedeemableByCode", mock.Anything, "11111", mock.Anything).Return(true, nil).Once()
		store.On("ExistsRedeemableByCode", mock.Anything, "22222", mock.Anything).Return(false, nil).Once()

		g := NewCodeGenerator(store)
		g.draw = sequenceDraw("11111", "22222")

		code, err := g.EnsureUnique(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "22222", code)
		store.AssertExpectations(t)
	})

	t.Run("fails loudly after max attempts", func(t *testing.T) {
		store := new(mockInvitationRepo)
		store.On("LockCode", mock.Anything, mock.Anything).Return(nil)
		store.On("ExistsRedeemableByCode", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

		g := NewCodeGenerator(store)
		g.draw = sequenceDraw("33333")

		_, err := g.EnsureUnique(context.Background())
		assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
		store.AssertNumberOfCalls(t, "ExistsRedeemableByCode", g.maxAttempts)
	})

	t.Run("propagates store errors", func(t *testing.T) {
		store := new(mockInvitationRepo)
		store.On("LockCode", mock.Anything, mock.Anything).Return(nil)
		store.On("ExistsRedeemableByCode", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("db down"))

		g := NewCodeGenerator(store)
		_, err := g.EnsureUnique(context.Background())
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrCodeSpaceExhausted)
	})
}
