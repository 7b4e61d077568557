package boardrun

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Outcome tells how a foreground capture ended
type Outcome int

const (
	OutcomeNone      Outcome = iota
	OutcomeEndMarker         // End-of-data marker seen
	OutcomeQuiet             // A read came back short
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEndMarker:
		return "end-marker"
	case OutcomeQuiet:
		return "quiet"
	default:
		return "none"
	}
}

// ForegroundResult summarizes a synchronous capture
type ForegroundResult struct {
	Outcome  Outcome
	Endpoint Endpoint // From the boot banner, unresolved if the board sent none
	Bytes    int64
}

// CaptureForeground resets the board and copies its output to w in the
// caller's goroutine.
//
// With an endMarker the capture ends right after the marker. A short read
// also ends it, and is reported as success (OutcomeQuiet, nil error) even
// though the marker was never seen; callers that need the marker must check
// Outcome. Transport faults end the capture with an error matching
// ErrTransportFault.
func CaptureForeground(ctx context.Context, t Transport, w io.Writer, endMarker string, config Config) (res ForegroundResult, err error) {
	if err := config.validate(); err != nil {
		return res, err
	}
	logger := zerolog.Ctx(ctx)

	first, err := Reset(ctx, t, config)
	if err != nil {
		return res, err
	}
	if _, err := w.Write([]byte{first}); err != nil {
		return res, fmt.Errorf("write capture: %w", err)
	}
	res.Bytes = 1

	line := newBannerLine(first, config.BannerMax)
	defer func() {
		res.Endpoint = line.endpoint()
	}()

	marker := []byte(endMarker)
	buf := make([]byte, config.ForegroundChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		n, rerr := t.Read(buf)
		chunk := buf[:n]
		found := false
		if len(marker) > 0 {
			if i := bytes.Index(chunk, marker); i >= 0 {
				chunk = chunk[:i+len(marker)]
				found = true
			}
		}

		line.feed(chunk)
		if _, err := w.Write(chunk); err != nil {
			return res, fmt.Errorf("write capture: %w", err)
		}
		res.Bytes += int64(len(chunk))

		if rerr != nil {
			return res, transportFault(rerr)
		}
		if found {
			res.Outcome = OutcomeEndMarker
			logger.Debug().Int64("bytes", res.Bytes).Msg("End of data marker found")
			return res, nil
		}
		if n < len(buf) {
			res.Outcome = OutcomeQuiet
			logger.Warn().Int("last_read", n).Msg("Serial read timeout, stopping capture")
			return res, nil
		}
	}
}

// ProbeEndpoint resets the board and reads its banner without capturing
// anything else.
func ProbeEndpoint(ctx context.Context, t Transport, config Config) (Endpoint, error) {
	if err := config.validate(); err != nil {
		return Endpoint{}, err
	}
	first, err := Reset(ctx, t, config)
	if err != nil {
		return Endpoint{}, err
	}
	banner, err := readBanner(t, first, config.BannerMax)
	if err != nil {
		return Endpoint{}, transportFault(err)
	}
	ep, err := ParseBanner(banner)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q", err, bytes.TrimSpace(banner))
	}
	return ep, nil
}

// bannerLine collects the first line of a capture
type bannerLine struct {
	buf  []byte
	max  int
	done bool
}

func newBannerLine(first byte, max int) *bannerLine {
	return &bannerLine{buf: []byte{first}, max: max, done: first == '\n'}
}

func (b *bannerLine) feed(p []byte) {
	if b.done {
		return
	}
	if i := bytes.IndexByte(p, '\n'); i >= 0 {
		p = p[:i]
		b.done = true
	}
	if room := max(b.max-len(b.buf), 0); len(p) > room {
		p = p[:room]
		b.done = true
	}
	b.buf = append(b.buf, p...)
}

func (b *bannerLine) endpoint() Endpoint {
	ep, err := ParseBanner(b.buf)
	if err != nil {
		return Endpoint{}
	}
	return ep
}
