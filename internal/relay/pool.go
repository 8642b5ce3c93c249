package relay

import "sync"

// chunkSize bounds a single body read and sizes the header assembly buffer.
const chunkSize = 4096

var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, chunkSize)
		return &b
	},
}

func getChunk() *[]byte {
	return chunkPool.Get().(*[]byte)
}

func putChunk(b *[]byte) {
	if cap(*b) != chunkSize {
		return
	}
	*b = (*b)[:chunkSize]
	chunkPool.Put(b)
}
