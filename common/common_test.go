package common

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountTradingDays(t *testing.T) {
	t.Parallel()
	mon := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, int64(0), CountTradingDays(mon, mon))
	assert.Equal(t, int64(0), CountTradingDays(mon, mon.AddDate(0, 0, -1)))
	assert.Equal(t, int64(1), CountTradingDays(mon, mon.AddDate(0, 0, 1)))
	assert.Equal(t, int64(4), CountTradingDays(mon, mon.AddDate(0, 0, 4)))

	// friday to monday crosses the weekend for a single accrual day
	fri := mon.AddDate(0, 0, 4)
	assert.Equal(t, int64(1), CountTradingDays(fri, fri.AddDate(0, 0, 3)))

	// a full week is five weekdays
	assert.Equal(t, int64(5), CountTradingDays(mon, mon.AddDate(0, 0, 7)))
}

func TestSpawnRNG(t *testing.T) {
	t.Parallel()
	a := SpawnRNG(rand.New(rand.NewSource(42)))
	b := SpawnRNG(rand.New(rand.NewSource(42)))

	// identical parents derive identical child streams
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}

	// consecutive children from one parent diverge
	parent := rand.New(rand.NewSource(42))
	c, d := SpawnRNG(parent), SpawnRNG(parent)
	assert.NotEqual(t, c.Int63(), d.Int63())
}
