package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWantsHasWithWithout(t *testing.T) {
	var w Wants
	assert.False(t, w.Has(KindStat))
	w = w.With(KindStat)
	assert.True(t, w.Has(KindStat))
	w = w.Without(KindStat)
	assert.False(t, w.Has(KindStat))
}

func TestEachWantedOrder(t *testing.T) {
	w := Wants(0).With(KindIO).With(KindStat).With(KindThreads)
	var got []Kind
	EachWanted(w, func(k Kind) { got = append(got, k) })
	assert.Equal(t, []Kind{KindStat, KindIO, KindThreads}, got)
}

func TestDefaultWantsMasks(t *testing.T) {
	assert.True(t, DefaultProcessWants.Has(KindChildren))
	assert.True(t, DefaultProcessWants.Has(KindThreads))
	assert.False(t, DefaultThreadWants.Has(KindChildren))
	assert.True(t, DefaultThreadWants.Has(KindStat))
}
