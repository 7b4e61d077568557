package boardrun

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

const mountTable = `sysfs /sys sysfs rw,nosuid,nodev,noexec,relatime 0 0
/dev/nvme0n1p2 / ext4 rw,relatime 0 0
/dev/sdb /media/ci/DAPLINK vfat rw,nosuid,nodev,relatime,uid=1000 0 0
/dev/sdc /media/ci/MBED\040DRIVE vfat rw,nosuid,nodev,relatime,uid=1000 0 0
/dev/sdd /media/ci/USBSTICK vfat rw,nosuid,nodev,relatime,uid=1000 0 0
`

func newTestDiscoverer(t *testing.T, ports []*enumerator.PortDetails) *MbedDiscoverer {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proc/self/mounts", []byte(mountTable), 0444))
	require.NoError(t, afero.WriteFile(fs, "/media/ci/DAPLINK/DETAILS.TXT",
		[]byte("# DAPLink Firmware - see https://mbed.com/daplink\nUnique ID: 0240000032044e4500257009997b00386781000097969900\nHIC ID: 97969900\n"), 0444))
	require.NoError(t, afero.WriteFile(fs, "/media/ci/MBED DRIVE/MBED.HTM",
		[]byte(`<meta http-equiv="refresh" content="0; url=http://mbed.org/device/?code=101000000000000000000002F7F0D9F6"/>`), 0444))
	require.NoError(t, afero.WriteFile(fs, "/media/ci/USBSTICK/notes.txt", []byte("hello"), 0444))

	return &MbedDiscoverer{
		Fs:         fs,
		MountTable: "/proc/self/mounts",
		ListPorts:  func() ([]*enumerator.PortDetails, error) { return ports, nil },
		Platforms:  DefaultPlatforms,
		Logger:     zerolog.Nop(),
	}
}

func TestMbedDiscoverer(t *testing.T) {
	ports := []*enumerator.PortDetails{
		{Name: "/dev/ttyACM1", IsUSB: true, VID: "0d28", PID: "0204", SerialNumber: "101000000000000000000002f7f0d9f6"},
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "0d28", PID: "0204", SerialNumber: "0240000032044e4500257009997b00386781000097969900"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "FT123456"},
	}
	d := newTestDiscoverer(t, ports)

	got, err := d.Discover(context.Background())
	require.NoError(t, err)

	want := []DeviceRecord{
		{
			ID:         0,
			Platform:   "K64F",
			MountPoint: "/media/ci/DAPLINK",
			SerialPort: "/dev/ttyACM0",
			TargetID:   "0240000032044E4500257009997B00386781000097969900",
			VendorID:   "0d28",
			ProductID:  "0204",
			Available:  true,
		},
		{
			ID:         1,
			Platform:   "LPC1768",
			MountPoint: "/media/ci/MBED DRIVE",
			SerialPort: "/dev/ttyACM1",
			TargetID:   "101000000000000000000002F7F0D9F6",
			VendorID:   "0d28",
			ProductID:  "0204",
			Available:  true,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Discover() mismatch (-want +got):\n%s", diff)
	}
}

func TestMbedDiscovererUnknownPlatform(t *testing.T) {
	d := newTestDiscoverer(t, []*enumerator.PortDetails{
		{Name: "/dev/ttyACM0", IsUSB: true, SerialNumber: "0240000032044e4500257009997b00386781000097969900"},
	})
	d.Platforms = map[string]string{}

	got, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0240", got[0].Platform)
}

func TestMbedDiscovererErrors(t *testing.T) {
	t.Run("enumeration fails", func(t *testing.T) {
		d := newTestDiscoverer(t, nil)
		d.ListPorts = func() ([]*enumerator.PortDetails, error) { return nil, errors.New("no sysfs") }
		_, err := d.Discover(context.Background())
		require.Error(t, err)
	})

	t.Run("mount table missing", func(t *testing.T) {
		d := newTestDiscoverer(t, nil)
		d.MountTable = "/proc/nope"
		_, err := d.Discover(context.Background())
		require.Error(t, err)
	})

	t.Run("feeds Manager errors", func(t *testing.T) {
		d := newTestDiscoverer(t, nil)
		d.MountTable = "/proc/nope"
		_, err := NewManager(context.Background(), d)
		require.ErrorIs(t, err, ErrDiscoveryUnavailable)
	})
}

func TestUnescapeMount(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/media/ci/DAPLINK", "/media/ci/DAPLINK"},
		{`/media/ci/MBED\040DRIVE`, "/media/ci/MBED DRIVE"},
		{`/mnt/tab\011here`, "/mnt/tab\there"},
		{`/mnt/trailing\04`, `/mnt/trailing\04`},
	}

	for _, tt := range tests {
		if got := unescapeMount(tt.in); got != tt.want {
			t.Errorf("unescapeMount(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStaticDiscovererReturnsCopy(t *testing.T) {
	s := StaticDiscoverer{{Platform: "K64F"}}
	got, err := s.Discover(context.Background())
	require.NoError(t, err)
	got[0].Platform = "changed"
	assert.Equal(t, "K64F", s[0].Platform)
}
