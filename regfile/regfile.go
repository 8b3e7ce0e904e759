// Package regfile implements the register-file external collaborator
// from spec §6: N synchronous read ports and M synchronous write ports
// over E entries, with same-cycle write-to-read forwarding and
// port-index priority (later index wins) when multiple writes target
// the same entry in one cycle. It backs both the cache's tag/valid/data
// arrays (C4) and the cached request/response channel's pending-id
// address storage (C5), generalized over entry type via Go generics the
// way the teacher's emu.RegFile is specialized to a fixed array of
// uint64 registers.
package regfile

import "fmt"

// ReadPort is one read port's per-cycle input.
type ReadPort struct {
	En   bool
	Addr int
}

// WritePort is one write port's per-cycle input.
type WritePort[T any] struct {
	En   bool
	Addr int
	Data T
}

// File is a multi-port synchronous register file over E entries of
// type T.
type File[T any] struct {
	entries []T
}

// New constructs a File with the given number of entries, which must be
// at least 1.
func New[T any](entries int) (*File[T], error) {
	if entries < 1 {
		return nil, fmt.Errorf("regfile: entries must be >= 1, got %d", entries)
	}
	return &File[T]{entries: make([]T, entries)}, nil
}

// Entries returns the number of addressable entries.
func (f *File[T]) Entries() int {
	return len(f.entries)
}

// Peek returns the currently committed value at addr without going
// through a Step; used by combinational reads that don't need to
// observe same-cycle writes (e.g. a cache's eviction-address
// reconstruction, which reads the outgoing entry before it is
// overwritten).
func (f *File[T]) Peek(addr int) T {
	return f.entries[addr]
}

// Step performs every read and write port's operation for one clock
// edge. Reads observe same-cycle writes to the same address (forwarded,
// per the register-file contract in spec §6); when multiple writes
// target the same address in one cycle, the highest-indexed enabled
// write in writes wins, both for the forwarded read value and for the
// value committed to the entry. Reads are returned in the same order as
// the reads argument; disabled read ports return the zero value of T.
func (f *File[T]) Step(reads []ReadPort, writes []WritePort[T]) []T {
	out := make([]T, len(reads))
	for i, r := range reads {
		if !r.En {
			continue
		}
		val := f.entries[r.Addr]
		for _, w := range writes {
			if w.En && w.Addr == r.Addr {
				val = w.Data
			}
		}
		out[i] = val
	}

	for _, w := range writes {
		if w.En {
			f.entries[w.Addr] = w.Data
		}
	}

	return out
}
