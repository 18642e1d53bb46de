package topn

import (
	"github.com/google/btree"
)

// Entry is one task held by the leaderboard with the memory it consumed.
// The task reference is only meant to be used until the entry is rendered.
type Entry struct {
	Memory int64
	Task   Task

	seq uint64
}

// entryLess orders entries by memory. Among equal values the entry admitted
// first sorts first and is therefore evicted first.
func entryLess(a, b Entry) bool {
	if a.Memory != b.Memory {
		return a.Memory < b.Memory
	}
	return a.seq < b.seq
}

// leaderboard is a bounded collection ordered by memory with fast access to
// its minimum. It is not safe for concurrent use.
type leaderboard struct {
	tree *btree.BTreeG[Entry]
	seq  uint64
}

func newLeaderboard() *leaderboard {
	return &leaderboard{tree: btree.NewG(8, entryLess)}
}

// offer admits task with the given memory if the leaderboard holds fewer than
// capacity entries, or if memory is strictly greater than the current
// minimum, which is then evicted.
func (l *leaderboard) offer(memory int64, task Task, capacity int) (admitted, evicted bool) {
	if l.tree.Len() >= capacity {
		if min, ok := l.tree.Min(); ok && min.Memory < memory {
			l.tree.DeleteMin()
			evicted = true
		}
	}
	if l.tree.Len() < capacity {
		l.seq++
		l.tree.ReplaceOrInsert(Entry{Memory: memory, Task: task, seq: l.seq})
		admitted = true
	}
	return admitted, evicted
}

// trim evicts minimums until at most capacity entries remain and returns the
// number evicted.
func (l *leaderboard) trim(capacity int) int {
	n := 0
	for l.tree.Len() > capacity {
		l.tree.DeleteMin()
		n++
	}
	return n
}

// min returns the smallest memory value held.
func (l *leaderboard) min() (int64, bool) {
	e, ok := l.tree.Min()
	return e.Memory, ok
}

func (l *leaderboard) len() int {
	return l.tree.Len()
}

// drain removes every entry and returns them, most expensive first.
func (l *leaderboard) drain() []Entry {
	entries := make([]Entry, 0, l.tree.Len())
	l.tree.Descend(func(e Entry) bool {
		entries = append(entries, e)
		return true
	})
	l.tree.Clear(false)
	return entries
}
