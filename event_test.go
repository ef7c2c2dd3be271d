package splatter

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSessionTableLookup(t *testing.T) {
	tbl := NewSessionTable(SessionSettings{BaseLifetime: 10, ParticlesPerEvent: 1})

	assert.Equal(t, float32(10), tbl.Lookup(99).BaseLifetime, "unknown ids fall back to the default")

	tbl.Set(5, SessionSettings{BaseLifetime: 3, ParticlesPerEvent: 2})
	assert.Equal(t, float32(3), tbl.Lookup(5).BaseLifetime)
	assert.Equal(t, 2, tbl.Lookup(5).ParticlesPerEvent)

	tbl.Remove(5)
	assert.Equal(t, float32(10), tbl.Lookup(5).BaseLifetime, "removed ids revert to the default")
}

func TestSessionTableSanitizesOnWrite(t *testing.T) {
	tbl := NewSessionTable(SessionSettings{})

	def := tbl.Default()
	assert.Equal(t, float32(defaultBaseLifetime), def.BaseLifetime)
	assert.Equal(t, 1, def.ParticlesPerEvent)
	assert.Equal(t, float32(1), def.SizeScale)

	tbl.Set(1, SessionSettings{BaseLifetime: -5, ParticlesPerEvent: 0, SizeScale: -1})
	s := tbl.Lookup(1)
	assert.Greater(t, s.BaseLifetime, float32(0))
	assert.Equal(t, 1, s.ParticlesPerEvent)
	assert.Equal(t, float32(1), s.SizeScale)
}

func TestStreamRegistryAssignsStableIDs(t *testing.T) {
	reg := NewStreamRegistry(time.Minute)
	a := uuid.New()
	b := uuid.New()

	idA := reg.Touch(a)
	idB := reg.Touch(b)
	assert.NotEqual(t, idA, idB)
	assert.Equal(t, idA, reg.Touch(a), "re-touching keeps the assigned id")
	assert.Equal(t, 2, reg.Len())
}

func TestStreamRegistryExpires(t *testing.T) {
	reg := NewStreamRegistry(10 * time.Second)
	now := time.Unix(1000, 0)
	reg.now = func() time.Time { return now }

	a := uuid.New()
	b := uuid.New()
	idA := reg.Touch(a)
	reg.Touch(b)

	now = now.Add(8 * time.Second)
	reg.Touch(b) // refresh b only

	now = now.Add(5 * time.Second) // a is 13s stale, b is 5s
	dropped := reg.Expire()
	assert.Equal(t, []int32{idA}, dropped)
	assert.Equal(t, 1, reg.Len())

	// A stream that returns after expiry gets a new id.
	assert.NotEqual(t, idA, reg.Touch(a))
}
