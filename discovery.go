package boardrun

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"go.bug.st/serial/enumerator"
)

// DeviceID is a board's position in the inventory, in discovery order
type DeviceID int

// NoDevice is the ID of a handle that has not been assigned a board
const NoDevice DeviceID = -1

// DeviceRecord describes one attached board
type DeviceRecord struct {
	ID         DeviceID
	Platform   string // e.g. "K64F"
	MountPoint string // Where the board's mass storage is mounted
	SerialPort string // e.g. "/dev/ttyACM0"
	TargetID   string // Interface firmware unique id, when known
	VendorID   string
	ProductID  string
	Available  bool
}

// Discoverer produces the board inventory once, when a Manager is created
type Discoverer interface {
	Discover(ctx context.Context) ([]DeviceRecord, error)
}

// DiscovererFunc adapts a function to Discoverer
type DiscovererFunc func(ctx context.Context) ([]DeviceRecord, error)

func (f DiscovererFunc) Discover(ctx context.Context) ([]DeviceRecord, error) {
	return f(ctx)
}

// StaticDiscoverer returns a fixed inventory, typically read from configuration
type StaticDiscoverer []DeviceRecord

func (s StaticDiscoverer) Discover(context.Context) ([]DeviceRecord, error) {
	return slices.Clone(s), nil
}

// DefaultPlatforms maps the first four characters of a DAPLink/CMSIS-DAP
// target id to the mbed platform name.
var DefaultPlatforms = map[string]string{
	"0200": "KL25Z",
	"0230": "K20D50M",
	"0231": "K22F",
	"0240": "K64F",
	"0250": "KW24D",
	"0311": "K66F",
	"0700": "NUCLEO_F103RB",
	"0720": "NUCLEO_F401RE",
	"0740": "NUCLEO_F411RE",
	"0764": "DISCO_L475VG_IOT01A",
	"0796": "NUCLEO_F429ZI",
	"1010": "LPC1768",
	"1114": "LPC1114",
	"1168": "LPC11U68",
	"1234": "UBLOX_C027",
}

var (
	detailsIDPattern = regexp.MustCompile(`(?m)^Unique ID:\s*([0-9A-Fa-f]+)`)
	mbedHTMPattern   = regexp.MustCompile(`(?:code|auth)=([0-9A-Fa-f]+)`)
)

// mountFSTypes are the filesystems a board's interface chip exposes
var mountFSTypes = map[string]bool{
	"vfat":    true,
	"msdos":   true,
	"exfat":   true,
	"fuseblk": true,
}

// MbedDiscoverer finds boards by pairing USB serial ports with mounted board
// drives that carry the same target id.
type MbedDiscoverer struct {
	Fs         afero.Fs
	MountTable string
	ListPorts  func() ([]*enumerator.PortDetails, error)
	Platforms  map[string]string
	Logger     zerolog.Logger
}

// NewMbedDiscoverer returns a discoverer for the local machine
func NewMbedDiscoverer(logger zerolog.Logger) *MbedDiscoverer {
	return &MbedDiscoverer{
		Fs:         afero.NewOsFs(),
		MountTable: "/proc/self/mounts",
		ListPorts:  enumerator.GetDetailedPortsList,
		Platforms:  DefaultPlatforms,
		Logger:     logger.With().Str("component", "discovery").Logger(),
	}
}

// Discover lists attached boards in serial port name order
func (d *MbedDiscoverer) Discover(ctx context.Context) ([]DeviceRecord, error) {
	ports, err := d.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	slices.SortFunc(ports, func(a, b *enumerator.PortDetails) int {
		return strings.Compare(a.Name, b.Name)
	})

	mounts, err := readMountPoints(d.Fs, d.MountTable)
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}

	drives := make(map[string]string) // target id -> mount point
	for _, mount := range mounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := readTargetID(d.Fs, mount)
		if id == "" {
			continue
		}
		drives[strings.ToUpper(id)] = mount
	}

	var records []DeviceRecord
	for _, p := range ports {
		if !p.IsUSB || p.SerialNumber == "" {
			continue
		}
		id := strings.ToUpper(p.SerialNumber)
		mount, ok := drives[id]
		if !ok {
			d.Logger.Debug().Str("port", p.Name).Str("serial", p.SerialNumber).Msg("No board drive for serial port")
			continue
		}

		records = append(records, DeviceRecord{
			ID:         DeviceID(len(records)),
			Platform:   d.platform(id),
			MountPoint: mount,
			SerialPort: p.Name,
			TargetID:   id,
			VendorID:   p.VID,
			ProductID:  p.PID,
			Available:  true,
		})
	}

	d.Logger.Info().Int("boards", len(records)).Msg("Discovery complete")
	return records, nil
}

// platform resolves a target id to a platform name, falling back to its code
func (d *MbedDiscoverer) platform(targetID string) string {
	if len(targetID) < 4 {
		return targetID
	}
	code := targetID[:4]
	if name, ok := d.Platforms[code]; ok {
		return name
	}
	return code
}

// readMountPoints returns the mount points of board-like filesystems
func readMountPoints(fs afero.Fs, table string) ([]string, error) {
	f, err := fs.Open(table)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var mounts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || !mountFSTypes[fields[2]] {
			continue
		}
		mounts = append(mounts, unescapeMount(fields[1]))
	}
	return mounts, scanner.Err()
}

// unescapeMount decodes the octal escapes the kernel uses in mount tables
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}

// readTargetID reads the interface firmware's unique id from a board drive
func readTargetID(fs afero.Fs, mount string) string {
	if data, err := afero.ReadFile(fs, filepath.Join(mount, "DETAILS.TXT")); err == nil {
		if m := detailsIDPattern.FindSubmatch(data); m != nil {
			return string(m[1])
		}
	}
	if data, err := afero.ReadFile(fs, filepath.Join(mount, "MBED.HTM")); err == nil {
		if m := mbedHTMPattern.FindSubmatch(data); m != nil {
			return string(m[1])
		}
	}
	return ""
}
