package boardrun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBanner(t *testing.T) {
	tests := []struct {
		name    string
		banner  string
		want    Endpoint
		wantErr bool
	}{
		{"plain", "OK:10.0.0.5:5000", Endpoint{"10.0.0.5", "5000"}, false},
		{"line ending", "OK:10.0.0.5:5000\r\n", Endpoint{"10.0.0.5", "5000"}, false},
		{"rest of output ignored", "OK:10.0.0.5:5000\nTEST 1 PASS\n", Endpoint{"10.0.0.5", "5000"}, false},
		{"octets not range checked", "OK:999.999.999.999:1", Endpoint{"999.999.999.999", "1"}, false},
		{"status ignored", ":192.168.1.20:7", Endpoint{"192.168.1.20", "7"}, false},
		{"two fields", "bad:port", Endpoint{}, true},
		{"host name", "OK:board.local:80", Endpoint{}, true},
		{"three octets", "OK:10.0.5:80", Endpoint{}, true},
		{"empty", "", Endpoint{}, true},
		{"address on second line", "booting\nOK:10.0.0.5:5000\n", Endpoint{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBanner([]byte(tt.banner))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrProtocol)
				assert.False(t, got.Resolved())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Resolved())
		})
	}
}

func TestIsDottedQuad(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"10.0.0.5", true},
		{"255.255.255.255", true},
		{"999.999.999.999", true},
		{"1.2.3", false},
		{"1.2.3.4.5", false},
		{"1234.2.3.4", false},
		{"a.b.c.d", false},
		{" 1.2.3.4", false},
	}

	for _, tt := range tests {
		if got := IsDottedQuad(tt.in); got != tt.want {
			t.Errorf("IsDottedQuad(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEndpointString(t *testing.T) {
	assert.Equal(t, "10.0.0.5:5000", Endpoint{"10.0.0.5", "5000"}.String())
	assert.Equal(t, "<unresolved>", Endpoint{Address: "10.0.0.5"}.String())
}

func TestReadBanner(t *testing.T) {
	t.Run("stops at newline", func(t *testing.T) {
		m := newMockTransport(data("K:1.2.3.4:80\nmore"))
		got, err := readBanner(m, 'O', 256)
		require.NoError(t, err)
		assert.Equal(t, "OK:1.2.3.4:80\n", string(got))
		assert.Equal(t, 1, m.remaining())
	})

	t.Run("stops at max", func(t *testing.T) {
		m := newMockTransport(data("abcdefgh"))
		got, err := readBanner(m, 'x', 4)
		require.NoError(t, err)
		assert.Equal(t, "xabc", string(got))
	})

	t.Run("stops when quiet", func(t *testing.T) {
		m := newMockTransport(data("ab"))
		m.idle = 0
		got, err := readBanner(m, 'x', 256)
		require.NoError(t, err)
		assert.Equal(t, "xab", string(got))
	})

	t.Run("first byte is newline", func(t *testing.T) {
		m := newMockTransport(data("abc"))
		got, err := readBanner(m, '\n', 256)
		require.NoError(t, err)
		assert.Equal(t, "\n", string(got))
		assert.Zero(t, m.reads)
	})
}
