package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrReadShort is returned when a read terminates (EOF or reset) before the
// requested byte count was satisfied. Per spec.md §4.1 and §7 this is a
// framing error: fatal to the connection, never surfaced as a response code.
var ErrReadShort = errors.New("wire: short read")

// ErrWriteShort is the write-side analogue of ErrReadShort.
var ErrWriteShort = errors.New("wire: short write")

// ErrFieldTooLarge is returned when a decoded length prefix exceeds the
// configured bound for that field (MaxPathname or MaxCharacters).
var ErrFieldTooLarge = errors.New("wire: field exceeds maximum length")

// readFull reads exactly len(buf) bytes, looping over partial reads and
// mapping EOF/ErrUnexpectedEOF/connection-reset to ErrReadShort, matching
// the "framed-complete" read requirement of spec.md §4.1.
func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("%w: %v", ErrReadShort, err)
	}
	return nil
}

func writeFull(w io.Writer, buf []byte) error {
	n, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteShort, err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrWriteShort, n, len(buf))
	}
	return nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readInt32(r io.Reader) (int32, error) {
	v, err := readUint32(r)
	return int32(v), err
}

func readInt64(r io.Reader) (int64, error) {
	var buf [8]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func readBytes(r io.Reader, maxLen uint32) ([]byte, error) {
	length, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if length > maxLen {
		return nil, fmt.Errorf("%w: got %d, max %d", ErrFieldTooLarge, length, maxLen)
	}
	if length == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, length)
	if err := readFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return writeFull(w, buf[:])
}

func writeInt32(w io.Writer, v int32) error {
	return writeUint32(w, uint32(v))
}

func writeInt64(w io.Writer, v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return writeFull(w, buf[:])
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return writeFull(w, buf[:])
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return writeFull(w, b)
}

// ReadRequest decodes one Request record from r. Any error returned is a
// framing error and the caller must tear down the connection (spec.md §7).
func ReadRequest(r io.Reader) (*Request, error) {
	pid, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	var cmdBuf [1]byte
	if err := readFull(r, cmdBuf[:]); err != nil {
		return nil, err
	}
	pathBytes, err := readBytes(r, MaxPathname)
	if err != nil {
		return nil, err
	}
	flags, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	size, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	content, err := readBytes(r, MaxCharacters)
	if err != nil {
		return nil, err
	}
	fdClient, err := readInt32(r)
	if err != nil {
		return nil, err
	}

	return &Request{
		PID:      pid,
		Cmd:      Command(cmdBuf[0]),
		Pathname: string(pathBytes),
		Flags:    flags,
		Size:     size,
		Content:  content,
		FDClient: fdClient,
	}, nil
}

// WriteRequest encodes one Request record to w. Used by the thin client
// package (pkg/client), not by the server's handler path.
func WriteRequest(w io.Writer, req *Request) error {
	if err := writeInt32(w, req.PID); err != nil {
		return err
	}
	if err := writeFull(w, []byte{byte(req.Cmd)}); err != nil {
		return err
	}
	if err := writeBytes(w, []byte(req.Pathname)); err != nil {
		return err
	}
	if err := writeInt32(w, req.Flags); err != nil {
		return err
	}
	if err := writeInt64(w, req.Size); err != nil {
		return err
	}
	if err := writeBytes(w, req.Content); err != nil {
		return err
	}
	return writeInt32(w, req.FDClient)
}

// ReadResponse decodes one Response record from r.
func ReadResponse(r io.Reader) (*Response, error) {
	pathBytes, err := readBytes(r, MaxPathname)
	if err != nil {
		return nil, err
	}
	content, err := readBytes(r, MaxCharacters)
	if err != nil {
		return nil, err
	}
	contentSize, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	code, err := readInt32(r)
	if err != nil {
		return nil, err
	}

	return &Response{
		Pathname:    string(pathBytes),
		Content:     content,
		ContentSize: contentSize,
		Code:        Code(code),
	}, nil
}

// WriteResponse encodes one Response record to w under the caller's per-fd
// write guard (spec.md §5: "the codec writes one response atomically under
// a per-fd write guard so interleaved evicted-file responses ... stay
// contiguous"). The guard itself lives in internal/server; this function
// only guarantees that a single call writes a complete record or fails.
func WriteResponse(w io.Writer, resp *Response) error {
	if err := writeBytes(w, []byte(resp.Pathname)); err != nil {
		return err
	}
	if err := writeBytes(w, resp.Content); err != nil {
		return err
	}
	if err := writeUint64(w, resp.ContentSize); err != nil {
		return err
	}
	return writeInt32(w, int32(resp.Code))
}
