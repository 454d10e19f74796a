package k3ng

import (
	"errors"
	"fmt"
	"strings"
)

// TLELineLength is the fixed width of both TLE data lines.
const TLELineLength = 69

// DeepSpaceTitlePrefix marks a title line in three-line element sets.
const DeepSpaceTitlePrefix = "0 "

// TLE is a two-line element set with its satellite name.
type TLE struct {
	Title string `json:"title"`
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// NewTLE normalizes the title and validates both data lines.
func NewTLE(title, line1, line2 string) (TLE, error) {
	t := TLE{
		Title: NormalizeTitle(title),
		Line1: strings.TrimRight(line1, " \r\n"),
		Line2: strings.TrimRight(line2, " \r\n"),
	}
	if err := t.Validate(); err != nil {
		return TLE{}, err
	}
	return t, nil
}

// NormalizeTitle trims whitespace and the leading "0 " marker.
func NormalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	for strings.HasPrefix(title, DeepSpaceTitlePrefix) {
		title = strings.TrimSpace(strings.TrimPrefix(title, DeepSpaceTitlePrefix))
	}
	return title
}

func (t TLE) Validate() error {
	if t.Title == "" {
		return errors.New("TLE title is empty")
	}
	if strings.HasPrefix(t.Title, DeepSpaceTitlePrefix) {
		return fmt.Errorf("TLE title %q starts with %q", t.Title, DeepSpaceTitlePrefix)
	}
	if err := validateLine(t.Line1, '1'); err != nil {
		return fmt.Errorf("%s: %w", t.Title, err)
	}
	if err := validateLine(t.Line2, '2'); err != nil {
		return fmt.Errorf("%s: %w", t.Title, err)
	}
	return nil
}

func validateLine(line string, number byte) error {
	if len(line) != TLELineLength {
		return fmt.Errorf("line %c is %d characters, want %d", number, len(line), TLELineLength)
	}
	if line[0] != number || line[1] != ' ' {
		return fmt.Errorf("line %c starts with %q", number, line[:2])
	}
	want := Checksum(line[:TLELineLength-1])
	if got := line[TLELineLength-1]; got != '0'+want {
		return fmt.Errorf("line %c checksum is %c, want %d", number, got, want)
	}
	return nil
}

// Checksum is the TLE modulo-10 checksum: digits count at face value,
// minus signs count as one.
func Checksum(s string) byte {
	var sum int
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return byte(sum % 10)
}

// LoadTLE uploads one element set; it becomes the first stored entry.
func (r *Rotator) LoadTLE(t TLE) error {
	return r.LoadTLEs(t)
}

// LoadTLEs uploads element sets as one file, replacing the controller's
// table. The upload is confirmed twice: the closing reply must name every
// satellite and report no corruption or truncation, and a fresh read of
// the table must start with exactly these entries in order.
func (r *Rotator) LoadTLEs(tles ...TLE) error {
	const op = "load tle"
	if len(tles) == 0 {
		return newError(InvalidArgument, op, "no TLEs to load", "")
	}
	seen := make(map[string]bool)
	for _, t := range tles {
		if err := t.Validate(); err != nil {
			return &Error{Kind: InvalidArgument, Op: op, Err: err}
		}
		if seen[t.Title] {
			return newError(InvalidArgument, op, "duplicate TLE title "+t.Title, "")
		}
		seen[t.Title] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// The firmware reads the record positionally, one line per write.
	if err := r.write(op, cmdLoadTLE); err != nil {
		return err
	}
	for _, t := range tles {
		for _, line := range []string{t.Title, t.Line1, t.Line2} {
			if err := r.write(op, line); err != nil {
				return err
			}
		}
	}
	reply, err := r.query(op, "")
	if err != nil {
		return err
	}
	if err := classifyUpload(op, reply, tles); err != nil {
		return err
	}

	stored, err := r.readTLEs(op)
	if err != nil {
		return err
	}
	for i, t := range tles {
		if i >= len(stored) {
			return newError(TleNotConfirmed, op, fmt.Sprintf("stored table has %d entries, want at least %d", len(stored), len(tles)), "")
		}
		if stored[i] != t {
			return newError(TleNotConfirmed, op,
				fmt.Sprintf("stored entry %d is %q, want %q", i, stored[i].Title, t.Title),
				strings.Join([]string{stored[i].Title, stored[i].Line1, stored[i].Line2}, "\n"))
		}
	}
	return nil
}

func classifyUpload(op string, reply Reply, tles []TLE) error {
	raw := reply.String()
	titles := make(map[string]bool, len(tles))
	for _, t := range tles {
		titles[t.Title] = true
	}
	for _, line := range reply {
		// The controller echoes each stored title; a satellite named
		// "CORRUPT" is not a failure.
		if titles[strings.TrimSpace(line)] {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, tleCorruptMarker):
			return newError(TleCorrupt, op, "controller reported a corrupt upload", raw)
		case strings.Contains(lower, tleTruncatedMarker):
			return newError(TleStorageFull, op, "controller truncated the upload", raw)
		}
	}
	for _, t := range tles {
		if !strings.Contains(raw, t.Title) {
			return newError(TleNotConfirmed, op, "controller did not acknowledge "+t.Title, raw)
		}
	}
	return nil
}

// ReadTLEs returns the controller's stored element sets in order.
func (r *Rotator) ReadTLEs() ([]TLE, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readTLEs("read tles")
}

func (r *Rotator) readTLEs(op string) ([]TLE, error) {
	reply, err := r.query(op, cmdDumpTLEs)
	if err != nil {
		return nil, err
	}
	return parseTLETable(op, reply)
}

func parseTLETable(op string, reply Reply) ([]TLE, error) {
	var tles []TLE
	for i := 0; i < len(reply) && reply[i] != ""; i += 3 {
		if len(reply)-i < 3 || reply[i+1] == "" || reply[i+2] == "" {
			return nil, newError(MalformedReply, op, "incomplete TLE entry", strings.Join(reply[i:], "\n"))
		}
		t, err := NewTLE(reply[i], reply[i+1], reply[i+2])
		if err != nil {
			return nil, &Error{Kind: MalformedReply, Op: op, Raw: strings.Join(reply[i:i+3], "\n"), Err: err}
		}
		tles = append(tles, t)
	}
	return tles, nil
}
