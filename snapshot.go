package taskstats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"sort"
	"unicode/utf16"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	kerrors "github.com/influxdata/taskstats/kit/errors"
)

// maxWireLength bounds string lengths and entry counts read off the wire so
// a corrupt length prefix cannot force a huge allocation.
const maxWireLength = 1 << 20

// maxPrealloc caps the values preallocated from a count read off the wire.
const maxPrealloc = 64

// SnapshotValue is one named value of a Snapshot.
type SnapshotValue struct {
	Key   string
	Value int64
}

// Snapshot is an immutable copy of the resource values of one phase of a task.
//
// Values keep their order: a snapshot read off the wire keeps the order in
// which the values were written, and a snapshot built from a map orders its
// values by key.
type Snapshot struct {
	phase  string
	values []SnapshotValue
}

// NewSnapshot returns a snapshot of values labelled with phase. The map is
// copied; a nil map yields an empty snapshot.
func NewSnapshot(phase string, values map[string]int64) Snapshot {
	s := Snapshot{phase: phase, values: make([]SnapshotValue, 0, len(values))}
	for k, v := range values {
		s.values = append(s.values, SnapshotValue{Key: k, Value: v})
	}
	sort.Slice(s.values, func(i, j int) bool { return s.values[i].Key < s.values[j].Key })
	return s
}

// NewOrderedSnapshot returns a snapshot holding values in the given order.
// A later value with a key seen before replaces the earlier value in place.
func NewOrderedSnapshot(phase string, values ...SnapshotValue) Snapshot {
	s := Snapshot{phase: phase, values: make([]SnapshotValue, 0, len(values))}
	index := make(map[string]int, len(values))
	for _, v := range values {
		s.set(index, v.Key, v.Value)
	}
	return s
}

// set stores value under key. index maps the keys already in s to their
// position and is updated.
func (s *Snapshot) set(index map[string]int, key string, value int64) {
	if i, ok := index[key]; ok {
		s.values[i].Value = value
		return
	}
	index[key] = len(s.values)
	s.values = append(s.values, SnapshotValue{Key: key, Value: value})
}

// Phase returns the phase label of the snapshot.
func (s Snapshot) Phase() string {
	return s.phase
}

// Values returns a copy of the snapshot values in order.
func (s Snapshot) Values() []SnapshotValue {
	out := make([]SnapshotValue, len(s.values))
	copy(out, s.values)
	return out
}

// Map returns the snapshot values as a map.
func (s Snapshot) Map() map[string]int64 {
	m := make(map[string]int64, len(s.values))
	for _, v := range s.values {
		m[v.Key] = v.Value
	}
	return m
}

// Value returns the value stored under key.
func (s Snapshot) Value(key string) (int64, bool) {
	for _, v := range s.values {
		if v.Key == key {
			return v.Value, true
		}
	}
	return 0, false
}

// Len returns the number of values.
func (s Snapshot) Len() int {
	return len(s.values)
}

// Equal reports whether s and other carry the same phase label and the same
// key/value pairs. Order does not matter.
func (s Snapshot) Equal(other Snapshot) bool {
	if s.phase != other.phase || len(s.values) != len(other.values) {
		return false
	}
	m := s.Map()
	for _, v := range other.values {
		if mv, ok := m[v.Key]; !ok || mv != v.Value {
			return false
		}
	}
	return true
}

// Hash returns a digest of the snapshot consistent with Equal.
func (s Snapshot) Hash() uint64 {
	h := xxhash.Sum64String(s.phase)
	var buf [8]byte
	for _, v := range s.values {
		d := xxhash.New()
		_, _ = d.WriteString(v.Key)
		binary.BigEndian.PutUint64(buf[:], uint64(v.Value))
		_, _ = d.Write(buf[:])
		// Entries are combined with addition so the digest does not depend on order.
		h += d.Sum64()
	}
	return h
}

// WriteTo writes the snapshot in its wire layout: the phase label followed
// by the value count and each key and value in order. Strings are written as
// a varint count of UTF-16 code units followed by each unit in one to three
// bytes (CESU-8), values as 8 byte big endian integers.
func (s Snapshot) WriteTo(w io.Writer) (int64, error) {
	b, err := s.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// MarshalBinary encodes the snapshot in its wire layout.
func (s Snapshot) MarshalBinary() ([]byte, error) {
	size := binary.MaxVarintLen64 + 2*len(s.phase) + binary.MaxVarintLen64
	for _, v := range s.values {
		size += binary.MaxVarintLen64 + 2*len(v.Key) + 8
	}
	b := make([]byte, 0, size)
	b = appendString(b, s.phase)
	b = binary.AppendUvarint(b, uint64(len(s.values)))
	for _, v := range s.values {
		b = appendString(b, v.Key)
		b = binary.BigEndian.AppendUint64(b, uint64(v.Value))
	}
	return b, nil
}

// UnmarshalBinary decodes a snapshot written by MarshalBinary.
func (s *Snapshot) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	snap, err := ReadSnapshot(r)
	if err != nil {
		return err
	}
	if r.Len() != 0 {
		return &kerrors.Error{
			Code: kerrors.EMalformed,
			Op:   "taskstats.Snapshot.UnmarshalBinary",
			Msg:  "trailing bytes after snapshot",
		}
	}
	*s = snap
	return nil
}

// ReadSnapshot reads one snapshot in wire layout from r. A reader that is not
// an io.ByteReader is buffered and may be read past the end of the snapshot.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	snap, err := readSnapshot(br)
	if err != nil {
		return Snapshot{}, &kerrors.Error{
			Code: kerrors.EMalformed,
			Op:   "taskstats.ReadSnapshot",
			Err:  err,
		}
	}
	return snap, nil
}

type byteReader interface {
	io.Reader
	io.ByteReader
}

func readSnapshot(r byteReader) (Snapshot, error) {
	phase, err := readString(r)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "reading phase label")
	}
	n, err := readLength(r)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "reading value count")
	}
	s := Snapshot{phase: phase, values: make([]SnapshotValue, 0, min(n, maxPrealloc))}
	index := make(map[string]int, min(n, maxPrealloc))
	var buf [8]byte
	for i := 0; i < n; i++ {
		key, err := readString(r)
		if err != nil {
			return Snapshot{}, errors.Wrapf(err, "reading key %d", i)
		}
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Snapshot{}, errors.Wrapf(err, "reading value of %q", key)
		}
		s.set(index, key, int64(binary.BigEndian.Uint64(buf[:])))
	}
	return s, nil
}

func appendString(b []byte, s string) []byte {
	units := utf16.Encode([]rune(s))
	b = binary.AppendUvarint(b, uint64(len(units)))
	for _, c := range units {
		switch {
		case c <= 0x7f:
			b = append(b, byte(c))
		case c <= 0x7ff:
			b = append(b, byte(0xc0|c>>6), byte(0x80|c&0x3f))
		default:
			b = append(b, byte(0xe0|c>>12), byte(0x80|(c>>6)&0x3f), byte(0x80|c&0x3f))
		}
	}
	return b
}

func readLength(r io.ByteReader) (int, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, err
	}
	if n > maxWireLength {
		return 0, errors.Errorf("length %d exceeds limit %d", n, maxWireLength)
	}
	return int(n), nil
}

func readString(r byteReader) (string, error) {
	n, err := readLength(r)
	if err != nil {
		return "", err
	}
	units := make([]uint16, 0, min(n, maxWireLength/16))
	for i := 0; i < n; i++ {
		c, err := readUnit(r)
		if err != nil {
			return "", err
		}
		units = append(units, c)
	}
	return string(utf16.Decode(units)), nil
}

// readUnit reads one UTF-16 code unit written by appendString.
func readUnit(r io.ByteReader) (uint16, error) {
	b0, err := readByte(r)
	if err != nil {
		return 0, err
	}
	switch b0 >> 4 {
	case 0, 1, 2, 3, 4, 5, 6, 7:
		return uint16(b0), nil
	case 12, 13:
		b1, err := readByte(r)
		if err != nil {
			return 0, err
		}
		return uint16(b0&0x1f)<<6 | uint16(b1&0x3f), nil
	case 14:
		b1, err := readByte(r)
		if err != nil {
			return 0, err
		}
		b2, err := readByte(r)
		if err != nil {
			return 0, err
		}
		return uint16(b0&0x0f)<<12 | uint16(b1&0x3f)<<6 | uint16(b2&0x3f), nil
	default:
		return 0, errors.Errorf("invalid string byte 0x%02x", b0)
	}
}

func readByte(r io.ByteReader) (byte, error) {
	b, err := r.ReadByte()
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return b, err
}

// MarshalJSON renders the snapshot as {"stats_type": ..., "resource_stats": {...}}.
// The resource_stats object is omitted when the snapshot is empty.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"stats_type":`)
	if err := writeJSONString(&buf, s.phase); err != nil {
		return nil, err
	}
	if len(s.values) > 0 {
		buf.WriteString(`,"resource_stats":{`)
		for i, v := range s.values {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(&buf, v.Key); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			b, _ := json.Marshal(v.Value)
			buf.Write(b)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// UnmarshalJSON parses the form written by MarshalJSON, keeping value order.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw struct {
		StatsType     *string         `json:"stats_type"`
		ResourceStats json.RawMessage `json:"resource_stats"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.StatsType == nil {
		return kerrors.Invalidf("taskstats.Snapshot.UnmarshalJSON", "missing stats_type")
	}
	snap := Snapshot{phase: *raw.StatsType}
	index := make(map[string]int)
	if len(raw.ResourceStats) > 0 && string(raw.ResourceStats) != "null" {
		dec := json.NewDecoder(bytes.NewReader(raw.ResourceStats))
		dec.UseNumber()
		if tok, err := dec.Token(); err != nil {
			return err
		} else if d, ok := tok.(json.Delim); !ok || d != '{' {
			return kerrors.Invalidf("taskstats.Snapshot.UnmarshalJSON", "resource_stats must be an object")
		}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return err
			}
			key, _ := tok.(string)
			var n json.Number
			if err := dec.Decode(&n); err != nil {
				return errors.Wrapf(err, "decoding %q", key)
			}
			v, err := n.Int64()
			if err != nil {
				return errors.Wrapf(err, "decoding %q", key)
			}
			snap.set(index, key, v)
		}
	}
	*s = snap
	return nil
}
