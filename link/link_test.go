package link

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPort returns one chunk per Read; an empty chunk is an idle read.
type scriptedPort struct {
	chunks  []string
	write   bytes.Buffer
	flushes int
	closed  int
	maxN    int // if >0, Write reports at most maxN bytes
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	if len(p.chunks) == 0 {
		return 0, io.EOF
	}
	c := p.chunks[0]
	p.chunks = p.chunks[1:]
	return copy(b, c), nil
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	if p.maxN > 0 && len(b) > p.maxN {
		p.write.Write(b[:p.maxN])
		return p.maxN, nil
	}
	return p.write.Write(b)
}

func (p *scriptedPort) Flush() error {
	p.flushes++
	return nil
}

func (p *scriptedPort) Close() error {
	p.closed++
	return nil
}

func newTestLink(p *scriptedPort) *Link {
	l := New(p, Config{Baud: Baud})
	l.sleep = func(time.Duration) {}
	return l
}

func TestReadLines(t *testing.T) {
	for _, test := range []struct {
		name   string
		chunks []string
		want   []string
	}{
		{"empty", nil, nil},
		{"terminator only", []string{"\r\n"}, nil},
		{"single", []string{"\\!OKAZ180.00\r\n\r\n"}, []string{`\!OKAZ180.00`}},
		{"split across reads", []string{"IS", "S\r\n1 25", "544\r\n", "\r\n"}, []string{"ISS", "1 25544"}},
		{"trailing whitespace", []string{"2024-01-01 00:00:00Z  \r\n\r\n"}, []string{"2024-01-01 00:00:00Z"}},
		{"interior empty line kept", []string{"a\r\n\r\nb\r\n\r\n"}, []string{"a", "", "b"}},
		{"no terminator", []string{"a\r\nb"}, []string{"a", "b"}},
		{"stops at idle gap", []string{"a\r\n\r\n", "", "late\r\n"}, []string{"a"}},
	} {
		t.Run(test.name, func(t *testing.T) {
			l := newTestLink(&scriptedPort{chunks: test.chunks})
			got, err := l.ReadLines()
			require.NoError(t, err)
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("unexpected lines: got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestReadLinesWaitsForFirstByte(t *testing.T) {
	p := &scriptedPort{chunks: []string{"", "", "OK\r\n\r\n", ""}}
	l := newTestLink(p)
	l.cfg.ReadTimeout = time.Second
	now := time.Unix(0, 0)
	l.now = func() time.Time {
		now = now.Add(100 * time.Millisecond)
		return now
	}
	got, err := l.ReadLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"OK"}, got)
}

func TestReadLinesGivesUpAfterReadTimeout(t *testing.T) {
	p := &scriptedPort{chunks: []string{"", "", "", "", "late\r\n"}}
	l := newTestLink(p)
	l.cfg.ReadTimeout = 250 * time.Millisecond
	now := time.Unix(0, 0)
	l.now = func() time.Time {
		now = now.Add(100 * time.Millisecond)
		return now
	}
	got, err := l.ReadLines()
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, []string{"", "late\r\n"}, p.chunks)
}

func TestWriteLine(t *testing.T) {
	p := &scriptedPort{}
	l := newTestLink(p)
	var slept time.Duration
	l.cfg.EchoDrain = 20 * time.Millisecond
	l.sleep = func(d time.Duration) { slept += d }
	require.NoError(t, l.WriteLine(`\GFN42hn`))
	assert.Equal(t, "\\GFN42hn\r", p.write.String())
	assert.Equal(t, 20*time.Millisecond, slept)
}

func TestWriteLineShortWrite(t *testing.T) {
	l := newTestLink(&scriptedPort{maxN: 2})
	err := l.WriteLine(`\C`)
	assert.True(t, errors.Is(err, ErrLink), "got %v", err)
}

func TestDiscardPending(t *testing.T) {
	p := &scriptedPort{chunks: []string{"stale\r\n", ""}}
	l := newTestLink(p)
	require.NoError(t, l.DiscardPending())
	assert.Equal(t, "\r", p.write.String())
	assert.Equal(t, 1, p.flushes)
	assert.Empty(t, p.chunks)
}

func TestDiscardPendingStopsOnChattyDevice(t *testing.T) {
	chunks := make([]string, 10)
	for i := range chunks {
		chunks[i] = "debug\r\n"
	}
	p := &scriptedPort{chunks: chunks}
	l := newTestLink(p)
	l.cfg.ReadTimeout = 250 * time.Millisecond
	now := time.Unix(0, 0)
	l.now = func() time.Time {
		now = now.Add(100 * time.Millisecond)
		return now
	}
	require.NoError(t, l.DiscardPending())
	assert.Len(t, p.chunks, 7)
}

func TestClosedLink(t *testing.T) {
	p := &scriptedPort{}
	l := newTestLink(p)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.Equal(t, 1, p.closed)
	assert.ErrorIs(t, l.WriteLine(`\C`), ErrLink)
	_, err := l.ReadLines()
	assert.ErrorIs(t, err, ErrLink)
}

func TestResolvePath(t *testing.T) {
	for in, want := range map[string]string{
		"":                 "",
		"ttyACM0":          "/dev/ttyACM0",
		"/dev/ttyUSB1":     "/dev/ttyUSB1",
		"/dev/../dev/ttyS": "/dev/ttyS",
		"./ttyACM0":        "ttyACM0",
	} {
		if got := ResolvePath(in); got != want {
			t.Errorf("ResolvePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCheckAccess(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "ttyFAKE0")
	require.NoError(t, os.WriteFile(ok, nil, 0o600))

	assert.NoError(t, CheckAccess(ok))
	assert.ErrorIs(t, CheckAccess(filepath.Join(dir, "missing")), ErrDeviceNotFound)
	assert.ErrorIs(t, CheckAccess(""), ErrDeviceNotFound)

	if os.Geteuid() == 0 {
		t.Skip("root bypasses file permissions")
	}
	ro := filepath.Join(dir, "ttyFAKE1")
	require.NoError(t, os.WriteFile(ro, nil, 0o400))
	assert.ErrorIs(t, CheckAccess(ro), ErrPermissionDenied)
}

func TestOpenRejectsBaud(t *testing.T) {
	cfg := DefaultConfig("/nonexistent")
	cfg.Baud = 115200
	_, err := Open(cfg)
	assert.ErrorIs(t, err, ErrLink)

	_, err = Open(DefaultConfig(filepath.Join(t.TempDir(), "ttyNONE")))
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}
