package boardrun

import (
	"bytes"
	"regexp"
	"strings"
)

// dottedQuad matches four dot-separated groups of 1-3 digits.
// Octets are not range-checked: 999.999.999.999 is accepted.
var dottedQuad = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

// Endpoint is the address/port pair a board announces in its boot banner
type Endpoint struct {
	Address string
	Port    string
}

// Resolved reports whether both address and port are known
func (e Endpoint) Resolved() bool {
	return e.Address != "" && e.Port != ""
}

func (e Endpoint) String() string {
	if !e.Resolved() {
		return "<unresolved>"
	}
	return e.Address + ":" + e.Port
}

// IsDottedQuad reports whether s looks like an IPv4 address
func IsDottedQuad(s string) bool {
	return dottedQuad.MatchString(s)
}

// ParseBanner parses "<status>:<address>:<port>". The status token is
// ignored and the port is passed through as text.
func ParseBanner(banner []byte) (Endpoint, error) {
	line := banner
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	fields := strings.SplitN(string(line), ":", 3)
	if len(fields) < 3 {
		return Endpoint{}, ErrProtocol
	}
	if !IsDottedQuad(fields[1]) {
		return Endpoint{}, ErrProtocol
	}
	return Endpoint{
		Address: fields[1],
		Port:    strings.TrimSpace(fields[2]),
	}, nil
}

// readBanner completes the banner line that started with first. It stops
// at a newline, after max bytes, or when the transport goes quiet.
func readBanner(t Transport, first byte, max int) ([]byte, error) {
	banner := []byte{first}
	buf := make([]byte, 1)
	for first != '\n' && len(banner) < max {
		n, err := t.Read(buf)
		if err != nil {
			return banner, err
		}
		if n == 0 {
			break
		}
		banner = append(banner, buf[0])
		if buf[0] == '\n' {
			break
		}
	}
	return banner, nil
}
