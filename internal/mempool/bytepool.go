// Package mempool provides buffer reuse for the preprocessing hot paths: a
// size-classed pool for short-lived scratch slices and a bump Arena that is
// reclaimed in bulk at batch chunk boundaries.
package mempool

import (
	"sync"
)

var bytePools sync.Map // key: size class (int), value: *sync.Pool

const (
	minClass  = 64 * 1024
	classStep = 64 * 1024
)

// sizeClass rounds n up to the next multiple of 64 KiB to reduce churn.
func sizeClass(n int) int {
	if n <= minClass {
		return minClass
	}
	r := (n + classStep - 1) / classStep
	return r * classStep
}

func poolFor(cls int) *sync.Pool {
	pAny, _ := bytePools.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]byte, cls)
		return &buf
	}})
	return pAny.(*sync.Pool)
}

// GetBytes retrieves a []byte of length n from the pool. Contents are not zeroed.
// The caller must return it via PutBytes when done.
func GetBytes(n int) []byte {
	if n < 0 {
		n = 0
	}
	cls := sizeClass(n)
	bp, ok := poolFor(cls).Get().(*[]byte)
	if !ok || cap(*bp) < cls {
		buf := make([]byte, cls)
		return buf[:n]
	}
	buf := *bp
	return buf[:n]
}

// PutBytes returns a buffer to the pool. It is safe to pass a nil slice.
// Buffers whose capacity is not a size class are dropped.
func PutBytes(buf []byte) {
	if buf == nil {
		return
	}
	c := cap(buf)
	if c < minClass || c%classStep != 0 {
		return
	}
	full := buf[:c]
	poolFor(c).Put(&full)
}
