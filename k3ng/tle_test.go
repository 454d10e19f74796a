package k3ng

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w1xm/k3ng_interface/k3ng/sim"
)

const (
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"

	noaaLine1 = "1 33591U 09005A   24001.50000000  .00000100  00000-0  80000-4 0  9990"
	noaaLine2 = "2 33591  99.1900 120.0000 0014000 100.0000 260.0000 14.12500000770005"
)

func testTLE(t *testing.T) TLE {
	t.Helper()
	tle, err := NewTLE("ISS", issLine1, issLine2)
	require.NoError(t, err)
	return tle
}

func noaaTLE(t *testing.T) TLE {
	t.Helper()
	tle, err := NewTLE("0 NOAA 19", noaaLine1, noaaLine2)
	require.NoError(t, err)
	return tle
}

func TestNewTLE(t *testing.T) {
	tle, err := NewTLE("0 ISS (ZARYA)  ", issLine1+"\r\n", issLine2)
	require.NoError(t, err)
	assert.Equal(t, TLE{Title: "ISS (ZARYA)", Line1: issLine1, Line2: issLine2}, tle)

	for _, test := range []struct {
		name          string
		title, l1, l2 string
	}{
		{"empty title", "", issLine1, issLine2},
		{"blank title", "   ", issLine1, issLine2},
		{"short line 1", "ISS", issLine1[:68], issLine2},
		{"long line 2", "ISS", issLine1, issLine2 + "0"},
		{"lines swapped", "ISS", issLine2, issLine1},
		{"bad checksum", "ISS", issLine1[:68] + "0", issLine2},
		{"corrupted digit", "ISS", issLine1[:20] + "9" + issLine1[21:], issLine2},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewTLE(test.title, test.l1, test.l2)
			assert.Error(t, err)
		})
	}
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, byte(7), Checksum(issLine1[:68]))
	assert.Equal(t, byte(7), Checksum(issLine2[:68]))
	assert.Equal(t, byte(1), Checksum("-"))
	assert.Equal(t, byte(0), Checksum("ABC +."))
}

func TestLoadTLEOnEmptyDevice(t *testing.T) {
	dev := sim.NewDevice()
	r, conn := newSimRotator(t, dev)
	iss := testTLE(t)

	require.NoError(t, r.LoadTLE(iss))
	if diff := cmp.Diff([]string{`\#`, "ISS", issLine1, issLine2, "", `\$`}, conn.Sent); diff != "" {
		t.Errorf("unexpected upload: got(-)/want(+):\n%s", diff)
	}

	tles, err := r.ReadTLEs()
	require.NoError(t, err)
	assert.Equal(t, []TLE{iss}, tles)
}

func TestLoadTLETwiceIsNotDuplicated(t *testing.T) {
	dev := sim.NewDevice()
	r, _ := newSimRotator(t, dev)
	iss := testTLE(t)
	require.NoError(t, r.LoadTLE(iss))
	require.NoError(t, r.LoadTLE(iss))
	tles, err := r.ReadTLEs()
	require.NoError(t, err)
	assert.Equal(t, []TLE{iss}, tles)
}

func TestLoadTLEs(t *testing.T) {
	dev := sim.NewDevice()
	r, _ := newSimRotator(t, dev)
	iss, noaa := testTLE(t), noaaTLE(t)
	require.NoError(t, r.LoadTLEs(noaa, iss))
	tles, err := r.ReadTLEs()
	require.NoError(t, err)
	assert.Equal(t, []TLE{noaa, iss}, tles)

	err = r.LoadTLEs(iss, iss)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, r.LoadTLEs(), ErrInvalidArgument)
	assert.ErrorIs(t, r.LoadTLE(TLE{Title: "ISS", Line1: "1", Line2: "2"}), ErrInvalidArgument)
}

func TestLoadTLECorrupt(t *testing.T) {
	dev := sim.NewDevice()
	r, _ := newSimRotator(t, dev)
	noaa := noaaTLE(t)
	require.NoError(t, r.LoadTLE(noaa))

	dev.CorruptTLE = true
	err := r.LoadTLE(testTLE(t))
	assert.ErrorIs(t, err, ErrTleCorrupt)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Contains(t, e.Raw, "TLE corrupt")

	dev.CorruptTLE = false
	tles, err := r.ReadTLEs()
	require.NoError(t, err)
	assert.Equal(t, []TLE{noaa}, tles, "table must be unchanged")
}

func TestLoadTLETitleLooksLikeFailure(t *testing.T) {
	for _, title := range []string{"CORRUPTOR-1", "TRUNCATUS"} {
		t.Run(title, func(t *testing.T) {
			dev := sim.NewDevice()
			r, _ := newSimRotator(t, dev)
			tle, err := NewTLE(title, issLine1, issLine2)
			require.NoError(t, err)
			require.NoError(t, r.LoadTLE(tle))
			tles, err := r.ReadTLEs()
			require.NoError(t, err)
			assert.Equal(t, []TLE{tle}, tles)
		})
	}
}

func TestLoadTLEStorageFull(t *testing.T) {
	dev := sim.NewDevice()
	dev.TLECapacity = 160
	r, _ := newSimRotator(t, dev)
	err := r.LoadTLEs(testTLE(t), noaaTLE(t))
	assert.ErrorIs(t, err, ErrTleStorageFull)
	assert.NotErrorIs(t, err, ErrTleCorrupt)
}

func TestLoadTLENotConfirmed(t *testing.T) {
	iss := testTLE(t)
	for _, test := range []struct {
		name    string
		replies [][]string
	}{
		{
			name:    "title missing from reply",
			replies: [][]string{{"Paste TLE file", "", "OK"}},
		},
		{
			name: "table starts with another satellite",
			replies: [][]string{
				{"ISS"},
				{"NOAA 19", noaaLine1, noaaLine2, "ISS", issLine1, issLine2},
			},
		},
		{
			name: "table is empty",
			replies: [][]string{
				{"ISS"},
				nil,
			},
		},
		{
			name: "stored lines differ",
			replies: [][]string{
				{"ISS"},
				{"ISS", issLine1, noaaLine2},
			},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			r, _ := scripted(test.replies...)
			assert.ErrorIs(t, r.LoadTLE(iss), ErrTleNotConfirmed)
		})
	}
}

func TestReadTLEs(t *testing.T) {
	for _, test := range []struct {
		name  string
		reply []string
		want  []TLE
		kind  Kind
	}{
		{name: "empty", reply: nil, want: nil},
		{name: "one", reply: []string{"ISS", issLine1, issLine2}, want: []TLE{{"ISS", issLine1, issLine2}}},
		{
			name:  "stops at empty line",
			reply: []string{"ISS", issLine1, issLine2, "", "Free space: 1500 bytes"},
			want:  []TLE{{"ISS", issLine1, issLine2}},
		},
		{name: "short entry", reply: []string{"ISS", issLine1, issLine2, "NOAA 19", noaaLine1}, kind: MalformedReply},
		{name: "blank inside entry", reply: []string{"ISS", issLine1, "", "x"}, kind: MalformedReply},
		{name: "bad line", reply: []string{"ISS", issLine1, issLine2[:40]}, kind: MalformedReply},
	} {
		t.Run(test.name, func(t *testing.T) {
			r, conn := scripted(test.reply)
			got, err := r.ReadTLEs()
			assert.Equal(t, []string{`\$`}, conn.sent)
			if test.kind != KindUnknown {
				assert.Equal(t, test.kind, KindOf(err))
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("unexpected TLEs: got(-)/want(+):\n%s", diff)
			}
		})
	}
}
