package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

const relayChunkSize = 32 * 1024

var (
	errUpstreamRead = errors.New("read upstream body")
	errClientWrite  = errors.New("write client response")
)

var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, relayChunkSize)
		return &b
	},
}

// relay copies src to w one chunk at a time and flushes after every write, so
// each chunk reaches the client as soon as it arrives from upstream. A write
// blocks while the client is slow to read, which stops further reads from src;
// at most one chunk is held in memory.
//
// commit runs exactly once, immediately before the first byte is written or at
// EOF for an empty body. If src fails before that, commit has not run and the
// caller may still send an error status. committed reports which case applies.
func relay(w http.ResponseWriter, src io.Reader, commit func()) (written int64, committed bool, err error) {
	bp := chunkPool.Get().(*[]byte)
	defer chunkPool.Put(bp)
	buf := *bp

	rc := http.NewResponseController(w)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if !committed {
				commit()
				committed = true
			}
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, committed, fmt.Errorf("%w: %w", errClientWrite, werr)
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return written, committed, fmt.Errorf("%w: flush: %w", errClientWrite, ferr)
			}
		}
		if rerr == io.EOF {
			if !committed {
				commit()
				committed = true
			}
			return written, committed, nil
		}
		if rerr != nil {
			return written, committed, fmt.Errorf("%w: %w", errUpstreamRead, rerr)
		}
	}
}
