package tunnel

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

const tailChunkSize = 8 << 10

// readTail returns at most the last n lines of the file at path, reading
// backwards in chunks so the cost is bounded by the window and not by the
// file size. maxBytes caps how far back the read may reach; n <= 0 means
// no line limit.
func readTail(path string, n int, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat log: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}

	size := info.Size()
	floor := int64(0)
	if maxBytes > 0 && size > maxBytes {
		floor = size - maxBytes
	}

	var window []byte
	offset := size
	newlines := 0
	for offset > floor && (n <= 0 || newlines <= n) {
		step := int64(tailChunkSize)
		if offset-floor < step {
			step = offset - floor
		}
		offset -= step

		chunk := make([]byte, step)
		if _, err := f.ReadAt(chunk, offset); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read log: %w", err)
		}
		newlines += bytes.Count(chunk, []byte{'\n'})
		window = append(chunk, window...)
	}

	if n <= 0 {
		return window, nil
	}
	return lastLines(window, n), nil
}

// lastLines trims buf to its final n lines. A trailing newline does not
// start a new line.
func lastLines(buf []byte, n int) []byte {
	end := len(buf)
	if end > 0 && buf[end-1] == '\n' {
		end--
	}

	cut := end
	for i := 0; i < n; i++ {
		cut = bytes.LastIndexByte(buf[:cut], '\n')
		if cut < 0 {
			return buf
		}
	}
	return buf[cut+1:]
}
