package handler

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/iotest"
)

// chunkReader yields one chunk per Read call, then err (io.EOF if nil).
type chunkReader struct {
	chunks [][]byte
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

// recordingWriter records every Write and Flush so chunk boundaries are visible.
type recordingWriter struct {
	*httptest.ResponseRecorder
	writes  []string
	flushes int
	events  []string
	failAt  int // fail the n-th write (1-based); 0 never fails
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{ResponseRecorder: httptest.NewRecorder()}
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.failAt > 0 && len(w.writes)+1 == w.failAt {
		return 0, errors.New("broken pipe")
	}
	w.writes = append(w.writes, string(p))
	w.events = append(w.events, "write")
	return w.ResponseRecorder.Write(p)
}

func (w *recordingWriter) Flush() {
	w.flushes++
	w.events = append(w.events, "flush")
	w.ResponseRecorder.Flush()
}

func TestRelay_ForwardsChunksInOrderAndFlushesEach(t *testing.T) {
	w := newRecordingWriter()
	src := &chunkReader{chunks: [][]byte{[]byte("one-"), []byte("two-"), []byte("three")}}

	commits := 0
	written, committed, err := relay(w, src, func() {
		commits++
		if len(w.writes) != 0 {
			t.Error("commit must run before the first write")
		}
		w.WriteHeader(http.StatusOK)
	})
	if err != nil {
		t.Fatalf("relay() error = %v", err)
	}
	if !committed || commits != 1 {
		t.Errorf("committed = %v, commits = %d; want true, 1", committed, commits)
	}
	if written != int64(len("one-two-three")) {
		t.Errorf("written = %d, want %d", written, len("one-two-three"))
	}

	wantWrites := []string{"one-", "two-", "three"}
	if len(w.writes) != len(wantWrites) {
		t.Fatalf("writes = %q, want %q", w.writes, wantWrites)
	}
	for i := range wantWrites {
		if w.writes[i] != wantWrites[i] {
			t.Errorf("write[%d] = %q, want %q", i, w.writes[i], wantWrites[i])
		}
	}

	wantEvents := []string{"write", "flush", "write", "flush", "write", "flush"}
	for i := range wantEvents {
		if i >= len(w.events) || w.events[i] != wantEvents[i] {
			t.Fatalf("events = %v, want %v", w.events, wantEvents)
		}
	}
	if w.Body.String() != "one-two-three" {
		t.Errorf("body = %q, want %q", w.Body.String(), "one-two-three")
	}
}

func TestRelay_EmptyBodyCommitsAtEOF(t *testing.T) {
	w := newRecordingWriter()

	commits := 0
	written, committed, err := relay(w, &chunkReader{}, func() { commits++ })
	if err != nil {
		t.Fatalf("relay() error = %v", err)
	}
	if written != 0 || !committed || commits != 1 {
		t.Errorf("written = %d, committed = %v, commits = %d; want 0, true, 1", written, committed, commits)
	}
}

func TestRelay_ReadErrorBeforeFirstByte(t *testing.T) {
	w := newRecordingWriter()
	src := iotest.ErrReader(io.ErrUnexpectedEOF)

	commits := 0
	_, committed, err := relay(w, src, func() { commits++ })
	if !errors.Is(err, errUpstreamRead) {
		t.Fatalf("relay() error = %v, want errUpstreamRead", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("relay() error = %v, want wrapped io.ErrUnexpectedEOF", err)
	}
	if committed || commits != 0 {
		t.Errorf("committed = %v, commits = %d; want false, 0", committed, commits)
	}
}

func TestRelay_ReadErrorAfterFirstByte(t *testing.T) {
	w := newRecordingWriter()
	src := &chunkReader{chunks: [][]byte{[]byte("partial")}, err: io.ErrUnexpectedEOF}

	written, committed, err := relay(w, src, func() {})
	if !errors.Is(err, errUpstreamRead) {
		t.Fatalf("relay() error = %v, want errUpstreamRead", err)
	}
	if !committed {
		t.Error("committed = false, want true")
	}
	if written != int64(len("partial")) {
		t.Errorf("written = %d, want %d", written, len("partial"))
	}
}

func TestRelay_WriteError(t *testing.T) {
	w := newRecordingWriter()
	w.failAt = 2
	src := &chunkReader{chunks: [][]byte{[]byte("a"), []byte("b"), []byte("c")}}

	written, _, err := relay(w, src, func() {})
	if !errors.Is(err, errClientWrite) {
		t.Fatalf("relay() error = %v, want errClientWrite", err)
	}
	if written != 1 {
		t.Errorf("written = %d, want 1", written)
	}
	if len(src.chunks) != 1 {
		t.Errorf("remaining chunks = %d, want 1; relay must stop reading after a write failure", len(src.chunks))
	}
}
