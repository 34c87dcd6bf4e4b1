package cache

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJanitor_InvalidSchedule(t *testing.T) {
	s, _ := newStore(t)

	_, err := NewJanitor(s, "every now and then", nil)
	require.ErrorContains(t, err, "invalid sweep schedule")
}

func TestJanitor_SweepRemovesExpired(t *testing.T) {
	s, c := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", 1, time.Second))
	require.NoError(t, s.Set(ctx, "b", 2, time.Hour))
	c.Advance(time.Minute)

	j, err := NewJanitor(s, "", logging.Nop())
	require.NoError(t, err)
	j.sweep()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Total)
	assert.Zero(t, st.Expired)
}

func TestJanitor_StartStop(t *testing.T) {
	s, _ := newStore(t)

	j, err := NewJanitor(s, "@every 1h", nil)
	require.NoError(t, err)

	j.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j.Stop(ctx)
	assert.NoError(t, ctx.Err())
}
