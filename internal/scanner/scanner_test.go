package scanner

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/RepairMe/extension/pkg/core"
	"github.com/RepairMe/extension/pkg/host/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestScanner(t *testing.T) (*Scanner, *sim.Host) {
	t.Helper()
	h := sim.New()
	h.Login(core.Character{Name: "Tester", World: "Cerberus"})

	s, err := New(h, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s, h
}

func gear() core.Slots {
	var slots core.Slots
	for i := range slots {
		if i == core.WaistSlot {
			continue
		}
		slots[i] = core.Slot{ItemID: uint32(100 + i), Condition: core.MaxCondition, Spiritbond: 1000}
	}
	return slots
}

func TestScan_DisabledIsNoop(t *testing.T) {
	s, h := newTestScanner(t)
	h.SetSlots(gear())

	assert.Nil(t, s.Scan(t0))
	assert.Equal(t, 0, h.Reads())
	assert.Nil(t, s.Latest())
	assert.Equal(t, uint64(1), s.Stats().Skipped)
}

func TestScan_ChangeProducesSnapshot(t *testing.T) {
	s, h := newTestScanner(t)
	h.SetSlots(gear())
	s.Enable()

	snap := s.Scan(t0)
	require.NotNil(t, snap)
	assert.Equal(t, gear(), snap.Slots())
	assert.Same(t, snap, s.Latest())

	// same data after cooldown: baseline was updated, no spurious change
	assert.Nil(t, s.Scan(t0.Add(DefaultCooldown)))
	assert.Same(t, snap, s.Latest())

	stats := s.Stats()
	assert.Equal(t, uint64(2), stats.Scans)
	assert.Equal(t, uint64(1), stats.Changes)
}

func TestScan_EmptyLoadoutReportedOnFirstRead(t *testing.T) {
	s, h := newTestScanner(t)
	s.Enable()

	snap := s.Scan(t0)
	require.NotNil(t, snap)
	assert.Same(t, snap, s.Latest())
	assert.Equal(t, 0, snap.Equipped())
	assert.Equal(t, float32(100), snap.LowestConditionPercent())
	assert.Equal(t, float32(0), snap.HighestSpiritbondPercent())
	assert.Equal(t, -1, snap.LowestConditionSlot())

	assert.Nil(t, s.Scan(t0.Add(DefaultCooldown)))
	assert.Equal(t, 2, h.Reads())
	assert.Same(t, snap, s.Latest())
}

func TestScan_SameGearAfterReacquireProducesSnapshot(t *testing.T) {
	s, h := newTestScanner(t)
	h.SetSlots(gear())
	s.Enable()
	first := s.Scan(t0)
	require.NotNil(t, first)

	s.Disable()
	h.Logout()
	h.Login(core.Character{Name: "Tester"})
	s.Enable()

	snap := s.Scan(t0.Add(time.Second))
	require.NotNil(t, snap, "first read from a fresh source always reports")
	assert.NotSame(t, first, snap)
	assert.Equal(t, first.Slots(), snap.Slots())
	assert.Nil(t, s.Scan(t0.Add(2*time.Second)))
}

func TestEnable_HeldSourceKeepsBaseline(t *testing.T) {
	s, h := newTestScanner(t)
	h.SetSlots(gear())
	s.Enable()
	require.NotNil(t, s.Scan(t0))

	s.Enable()
	assert.Nil(t, s.Scan(t0.Add(time.Second)))
}

func TestScan_CooldownSkipsRead(t *testing.T) {
	s, h := newTestScanner(t)
	h.SetSlots(gear())
	s.Enable()

	require.NotNil(t, s.Scan(t0))

	h.SetSlot(0, core.Slot{ItemID: 1, Condition: 1})
	assert.Nil(t, s.Scan(t0.Add(100*time.Millisecond)), "second scan inside cooldown is a no-op")
	assert.Equal(t, 1, h.Reads())

	snap := s.Scan(t0.Add(200 * time.Millisecond))
	require.NotNil(t, snap, "change picked up once the cooldown elapsed")
	assert.Equal(t, 2, h.Reads())
	assert.Equal(t, uint16(1), snap.Slot(0).Condition)
}

func TestScan_CooldownOption(t *testing.T) {
	h := sim.New()
	h.Login(core.Character{})
	s, err := New(h, slog.New(slog.NewTextHandler(io.Discard, nil)), WithCooldown(time.Second))
	require.NoError(t, err)
	s.Enable()

	s.Scan(t0)
	s.Scan(t0.Add(500 * time.Millisecond))
	assert.Equal(t, 1, h.Reads())
	s.Scan(t0.Add(time.Second))
	assert.Equal(t, 2, h.Reads())
}

func TestScan_ItemSwapWithSameCondition(t *testing.T) {
	s, h := newTestScanner(t)
	h.SetSlots(gear())
	s.Enable()
	first := s.Scan(t0)
	require.NotNil(t, first)

	swapped := gear()
	swapped[2].ItemID = 9999
	h.SetSlots(swapped)

	snap := s.Scan(t0.Add(time.Second))
	require.NotNil(t, snap)
	assert.Equal(t, first.LowestConditionPercent(), snap.LowestConditionPercent())
	assert.Equal(t, uint32(9999), snap.Slot(2).ItemID)
}

func TestScan_DisableMidSessionAndResume(t *testing.T) {
	s, h := newTestScanner(t)
	h.SetSlots(gear())
	s.Enable()
	require.NotNil(t, s.Scan(t0))

	// entering a restricted area
	s.Disable()
	s.Disable()
	h.Logout()
	assert.Nil(t, s.Scan(t0.Add(time.Second)))
	assert.Equal(t, 1, h.Reads(), "disabled scanner must not touch the stale handle")

	h.Login(core.Character{Name: "Tester"})
	changed := gear()
	changed[0].Condition = 0
	h.SetSlots(changed)

	s.Enable()
	s.Enable()
	assert.True(t, s.Enabled())
	snap := s.Scan(t0.Add(2 * time.Second))
	require.NotNil(t, snap)
	assert.Equal(t, float32(0), snap.LowestConditionPercent())
	assert.Equal(t, 0, snap.LowestConditionSlot())
}

func TestScan_ReadErrorDropsSourceUntilEnable(t *testing.T) {
	s, h := newTestScanner(t)
	h.SetSlots(gear())
	s.Enable()

	h.FailRead(errors.New("container moved"))
	assert.Nil(t, s.Scan(t0))
	assert.False(t, s.Enabled())

	h.FailRead(nil)
	assert.Nil(t, s.Scan(t0.Add(time.Second)), "no retry every frame")
	assert.Equal(t, 0, h.Reads())

	s.Enable()
	assert.NotNil(t, s.Scan(t0.Add(2*time.Second)))
	assert.Equal(t, uint64(1), s.Stats().ReadErrors)
}

func TestScan_StaleHandleAfterRelogIsContained(t *testing.T) {
	s, h := newTestScanner(t)
	h.SetSlots(gear())
	s.Enable()
	require.NotNil(t, s.Scan(t0))

	// logout without the scanner being told: the old handle is now invalid
	h.Logout()
	h.Login(core.Character{Name: "Tester"})
	assert.Nil(t, s.Scan(t0.Add(time.Second)))
	assert.False(t, s.Enabled())

	s.Enable()
	assert.True(t, s.Enabled())
}

func TestEnable_AcquireFailureRetriedOnNextEnable(t *testing.T) {
	s, h := newTestScanner(t)
	h.SetSlots(gear())
	h.FailAcquire(errors.New("not loaded"))

	s.Enable()
	assert.False(t, s.Enabled())
	assert.Nil(t, s.Scan(t0))

	h.FailAcquire(nil)
	s.Enable()
	assert.NotNil(t, s.Scan(t0))
}
