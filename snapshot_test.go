package taskstats_test

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/influxdata/taskstats"
	"github.com/influxdata/taskstats/kit/errors"
)

func TestSnapshot_Binary(t *testing.T) {
	for _, tt := range []struct {
		name string
		snap taskstats.Snapshot
	}{
		{
			name: "empty",
			snap: taskstats.NewSnapshot("worker_stats", nil),
		},
		{
			name: "single",
			snap: taskstats.NewSnapshot("worker_stats", map[string]int64{"memory_in_bytes": 2048}),
		},
		{
			name: "negative and extreme values",
			snap: taskstats.NewOrderedSnapshot("operation_stats",
				taskstats.SnapshotValue{Key: "b", Value: -1},
				taskstats.SnapshotValue{Key: "a", Value: 1<<63 - 1},
				taskstats.SnapshotValue{Key: "c", Value: -1 << 63},
			),
		},
		{
			name: "unicode",
			snap: taskstats.NewOrderedSnapshot("fase_ü",
				taskstats.SnapshotValue{Key: "mémoire", Value: 7},
				taskstats.SnapshotValue{Key: "内存_😀", Value: 8},
			),
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if _, err := tt.snap.WriteTo(&buf); err != nil {
				t.Fatal(err)
			}

			got, err := taskstats.ReadSnapshot(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(tt.snap) {
				t.Fatalf("snapshots differ: got %v, want %v", got.Map(), tt.snap.Map())
			}
			if diff := cmp.Diff(tt.snap.Values(), got.Values()); diff != "" {
				t.Fatalf("value order changed -want/+got:\n%s", diff)
			}
			if got.Phase() != tt.snap.Phase() {
				t.Fatalf("unexpected phase: %q", got.Phase())
			}
		})
	}
}

func TestSnapshot_Binary_Layout(t *testing.T) {
	snap := taskstats.NewOrderedSnapshot("w", taskstats.SnapshotValue{Key: "m", Value: 258})
	b, err := snap.MarshalBinary()
	require.NoError(t, err)

	want := []byte{
		1, 'w', // phase label
		1,      // value count
		1, 'm', // key
		0, 0, 0, 0, 0, 0, 1, 2, // big endian value
	}
	require.Equal(t, want, b)
}

func TestSnapshot_Binary_LayoutNonASCII(t *testing.T) {
	for _, tt := range []struct {
		name string
		key  string
		want []byte
	}{
		{
			name: "two byte char",
			key:  "é",
			want: []byte{1, 0xc3, 0xa9},
		},
		{
			name: "three byte char",
			key:  "内",
			want: []byte{1, 0xe5, 0x86, 0x85},
		},
		{
			name: "surrogate pair",
			key:  "😀",
			want: []byte{2, 0xed, 0xa0, 0xbd, 0xed, 0xb8, 0x80},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			b, err := taskstats.NewOrderedSnapshot(tt.key).MarshalBinary()
			require.NoError(t, err)
			require.Equal(t, append(tt.want, 0), b)

			got, err := taskstats.ReadSnapshot(bytes.NewReader(b))
			require.NoError(t, err)
			require.Equal(t, tt.key, got.Phase())
		})
	}
}

func TestSnapshot_Binary_Sequence(t *testing.T) {
	a := taskstats.NewSnapshot("worker_stats", map[string]int64{"memory_in_bytes": 1})
	b := taskstats.NewSnapshot("operation_stats", map[string]int64{"cpu_time_in_nanos": 2})

	var buf bytes.Buffer
	_, err := a.WriteTo(&buf)
	require.NoError(t, err)
	_, err = b.WriteTo(&buf)
	require.NoError(t, err)

	r := bytes.NewReader(buf.Bytes())
	got, err := taskstats.ReadSnapshot(r)
	require.NoError(t, err)
	require.True(t, got.Equal(a))
	got, err = taskstats.ReadSnapshot(r)
	require.NoError(t, err)
	require.True(t, got.Equal(b))
	_, err = taskstats.ReadSnapshot(r)
	require.Error(t, err)
}

func TestSnapshot_Binary_Malformed(t *testing.T) {
	b, err := taskstats.NewSnapshot("worker_stats", map[string]int64{"memory_in_bytes": 1}).MarshalBinary()
	require.NoError(t, err)

	for i := 0; i < len(b); i++ {
		_, err := taskstats.ReadSnapshot(bytes.NewReader(b[:i]))
		if err == nil {
			t.Fatalf("truncated input of %d bytes decoded", i)
		}
		if code := errors.ErrorCode(err); code != errors.EMalformed {
			t.Fatalf("unexpected error code %q for %d bytes", code, i)
		}
	}

	var snap taskstats.Snapshot
	err = snap.UnmarshalBinary(append(b, 0))
	require.Equal(t, errors.EMalformed, errors.ErrorCode(err))

	// 0x80 can not start a character.
	_, err = taskstats.ReadSnapshot(bytes.NewReader([]byte{1, 0x80, 0}))
	require.Equal(t, errors.EMalformed, errors.ErrorCode(err))

	// A length prefix beyond the limit is rejected before allocating.
	_, err = taskstats.ReadSnapshot(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x0f}))
	require.Equal(t, errors.EMalformed, errors.ErrorCode(err))
}

func TestReadSnapshot_LargeCount(t *testing.T) {
	const n = 200000

	b := []byte{1, 'w'}
	b = binary.AppendUvarint(b, n+1)
	for i := 0; i < n; i++ {
		key := strconv.Itoa(i)
		b = append(b, byte(len(key)))
		b = append(b, key...)
		b = binary.BigEndian.AppendUint64(b, uint64(i))
	}
	// The last key repeats the first one and replaces its value.
	b = append(b, 1, '0')
	b = binary.BigEndian.AppendUint64(b, 42)

	start := time.Now()
	got, err := taskstats.ReadSnapshot(bytes.NewReader(b))
	require.NoError(t, err)
	if d := time.Since(start); d > 5*time.Second {
		t.Fatalf("decoding %d values took %s", n, d)
	}
	require.Equal(t, n, got.Len())
	v, ok := got.Value("0")
	require.True(t, ok)
	require.Equal(t, int64(42), v)

	// A count with no entries behind it fails without reading the whole count.
	_, err = taskstats.ReadSnapshot(bytes.NewReader(append([]byte{1, 'w'}, binary.AppendUvarint(nil, 1<<20)...)))
	require.Equal(t, errors.EMalformed, errors.ErrorCode(err))
}

type onlyReader struct{ r io.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }

func TestReadSnapshot_PlainReader(t *testing.T) {
	snap := taskstats.NewSnapshot("worker_stats", map[string]int64{"memory_in_bytes": 5, "cpu_time_in_nanos": 9})
	b, err := snap.MarshalBinary()
	require.NoError(t, err)

	got, err := taskstats.ReadSnapshot(onlyReader{bytes.NewReader(b)})
	require.NoError(t, err)
	require.True(t, got.Equal(snap))
}

func TestNewSnapshot_CopiesMap(t *testing.T) {
	m := map[string]int64{"b": 2, "a": 1}
	snap := taskstats.NewSnapshot("worker_stats", m)
	m["a"] = 100

	v, ok := snap.Value("a")
	require.True(t, ok)
	require.Equal(t, int64(1), v)
	require.Equal(t, []taskstats.SnapshotValue{{Key: "a", Value: 1}, {Key: "b", Value: 2}}, snap.Values())
}

func TestSnapshot_EqualAndHash(t *testing.T) {
	a := taskstats.NewOrderedSnapshot("worker_stats",
		taskstats.SnapshotValue{Key: "x", Value: 1},
		taskstats.SnapshotValue{Key: "y", Value: 2},
	)
	b := taskstats.NewOrderedSnapshot("worker_stats",
		taskstats.SnapshotValue{Key: "y", Value: 2},
		taskstats.SnapshotValue{Key: "x", Value: 1},
	)
	require.True(t, a.Equal(b))
	require.Equal(t, a.Hash(), b.Hash())

	c := taskstats.NewOrderedSnapshot("operation_stats", a.Values()...)
	require.False(t, a.Equal(c))
	require.NotEqual(t, a.Hash(), c.Hash())

	d := taskstats.NewOrderedSnapshot("worker_stats",
		taskstats.SnapshotValue{Key: "x", Value: 1},
		taskstats.SnapshotValue{Key: "y", Value: 3},
	)
	require.False(t, a.Equal(d))
	require.NotEqual(t, a.Hash(), d.Hash())
}

func TestSnapshot_JSON(t *testing.T) {
	snap := taskstats.NewOrderedSnapshot("worker_stats",
		taskstats.SnapshotValue{Key: "memory_in_bytes", Value: 2048},
		taskstats.SnapshotValue{Key: "cpu_time_in_nanos", Value: 10},
	)
	b, err := json.Marshal(snap)
	require.NoError(t, err)
	require.Equal(t, `{"stats_type":"worker_stats","resource_stats":{"memory_in_bytes":2048,"cpu_time_in_nanos":10}}`, string(b))

	var got taskstats.Snapshot
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, snap.Values(), got.Values())
	require.Equal(t, "worker_stats", got.Phase())

	b, err = json.Marshal(taskstats.NewSnapshot("worker_stats", nil))
	require.NoError(t, err)
	require.Equal(t, `{"stats_type":"worker_stats"}`, string(b))

	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, 0, got.Len())

	err = json.Unmarshal([]byte(`{"resource_stats":{}}`), &got)
	require.Equal(t, errors.EInvalid, errors.ErrorCode(err))
}
