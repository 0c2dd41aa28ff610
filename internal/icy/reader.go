package icy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

var ErrInvalidMetaInt = errors.New("invalid icy-metaint")

// Reader strips in-band ICY metadata from an audio stream. Every metaInt
// audio bytes the server inserts one length byte followed by length*16
// bytes of metadata; non-empty blocks are handed to onMetadata.
type Reader struct {
	src        *bufio.Reader
	metaInt    int
	remaining  int
	onMetadata func([]byte)
}

func NewReader(src io.Reader, metaInt int, onMetadata func([]byte)) *Reader {
	return &Reader{
		src:        bufio.NewReader(src),
		metaInt:    metaInt,
		remaining:  metaInt,
		onMetadata: onMetadata,
	}
}

// MetaInt reads the metadata interval from response headers. Zero means
// the server is not interleaving metadata.
func MetaInt(h http.Header) (int, error) {
	raw := h.Get("icy-metaint")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMetaInt, raw)
	}
	return n, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.metaInt <= 0 {
		return r.src.Read(p)
	}

	if r.remaining == 0 {
		if err := r.readMetadata(); err != nil {
			return 0, err
		}
		r.remaining = r.metaInt
	}

	if len(p) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.src.Read(p)
	r.remaining -= n
	return n, err
}

func (r *Reader) readMetadata() error {
	lenByte, err := r.src.ReadByte()
	if err != nil {
		return err
	}

	size := int(lenByte) * 16
	if size == 0 {
		return nil
	}

	block := make([]byte, size)
	if _, err := io.ReadFull(r.src, block); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}

	if r.onMetadata != nil {
		r.onMetadata(block)
	}
	return nil
}
