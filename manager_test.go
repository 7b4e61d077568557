package boardrun

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoK64F() StaticDiscoverer {
	return StaticDiscoverer{
		{Platform: "K64F", MountPoint: "/media/DAPLINK", SerialPort: "/dev/ttyACM0"},
		{Platform: "K64F", MountPoint: "/media/DAPLINK1", SerialPort: "/dev/ttyACM1"},
	}
}

func TestNewManager(t *testing.T) {
	t.Run("nil discoverer", func(t *testing.T) {
		_, err := NewManager(context.Background(), nil)
		require.ErrorIs(t, err, ErrDiscoveryUnavailable)
	})

	t.Run("discovery error", func(t *testing.T) {
		boom := errors.New("no /proc")
		d := DiscovererFunc(func(context.Context) ([]DeviceRecord, error) { return nil, boom })
		_, err := NewManager(context.Background(), d)
		require.ErrorIs(t, err, ErrDiscoveryUnavailable)
		require.ErrorIs(t, err, boom)
	})

	t.Run("records start available in discovery order", func(t *testing.T) {
		d := StaticDiscoverer{
			{ID: 7, Platform: "K64F", SerialPort: "/dev/ttyACM0"},
			{ID: 3, Platform: "LPC1768", SerialPort: "/dev/ttyACM1"},
		}
		m, err := NewManager(context.Background(), d)
		require.NoError(t, err)

		want := []DeviceRecord{
			{ID: 0, Platform: "K64F", SerialPort: "/dev/ttyACM0", Available: true},
			{ID: 1, Platform: "LPC1768", SerialPort: "/dev/ttyACM1", Available: true},
		}
		if diff := cmp.Diff(want, m.Records()); diff != "" {
			t.Errorf("Records() mismatch (-want +got):\n%s", diff)
		}
		// The discoverer's slice is not touched
		assert.Equal(t, DeviceID(7), d[0].ID)
	})
}

func TestManagerAcquire(t *testing.T) {
	m, err := NewManager(context.Background(), twoK64F())
	require.NoError(t, err)

	a, err := m.Acquire("K64F")
	require.NoError(t, err)
	assert.Equal(t, DeviceID(0), a.ID)
	assert.Equal(t, "/dev/ttyACM0", a.SerialPort)

	b, err := m.Acquire("K64F")
	require.NoError(t, err)
	assert.Equal(t, DeviceID(1), b.ID)

	c, err := m.Acquire("K64F")
	require.ErrorIs(t, err, ErrDeviceBusy)
	assert.Equal(t, NoDevice, c.ID)

	d, err := m.Acquire("NUCLEO_F401RE")
	require.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Equal(t, NoDevice, d.ID)
}

func TestManagerRelease(t *testing.T) {
	m, err := NewManager(context.Background(), twoK64F())
	require.NoError(t, err)

	rec, err := m.Acquire("K64F")
	require.NoError(t, err)

	avail, err := m.Available(rec.ID)
	require.NoError(t, err)
	assert.False(t, avail)

	require.NoError(t, m.Release(rec.ID))
	avail, err = m.Available(rec.ID)
	require.NoError(t, err)
	assert.True(t, avail)

	require.ErrorIs(t, m.Release(rec.ID), ErrAlreadyReleased)
	require.ErrorIs(t, m.Release(42), ErrUnknownDevice)
	require.ErrorIs(t, m.Release(NoDevice), ErrUnknownDevice)

	_, err = m.Available(42)
	require.ErrorIs(t, err, ErrUnknownDevice)

	// The released board is handed out again
	again, err := m.Acquire("K64F")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
}

func TestManagerConcurrentAcquire(t *testing.T) {
	records := make(StaticDiscoverer, 8)
	for i := range records {
		records[i] = DeviceRecord{Platform: "K64F"}
	}
	m, err := NewManager(context.Background(), records)
	require.NoError(t, err)

	got := make(chan DeviceID, 16)
	done := make(chan struct{})
	for range 16 {
		go func() {
			defer func() { done <- struct{}{} }()
			if rec, err := m.Acquire("K64F"); err == nil {
				got <- rec.ID
			}
		}()
	}
	for range 16 {
		<-done
	}
	close(got)

	seen := make(map[DeviceID]bool)
	for id := range got {
		assert.False(t, seen[id], "board %d handed out twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, 8)
}
