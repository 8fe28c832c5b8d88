package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	defaultPoll  = 250 * time.Millisecond
	maxLineBytes = 1 << 20
)

// Options controls Tail.
type Options struct {
	// Lines is how many trailing lines to print first. Zero prints the whole
	// file.
	Lines int
	// Follow keeps reading appended lines until the context ends.
	Follow bool
	// Poll is the follow cadence. Zero uses 250ms.
	Poll time.Duration
}

// Tail emits the last lines of path and, when following, every line appended
// afterwards. A missing file is treated as empty so following can start
// before the watcher has written anything.
func Tail(ctx context.Context, path string, opts Options, emit func(string)) error {
	lines, offset, err := Last(path, opts.Lines)
	if err != nil {
		return err
	}
	for _, line := range lines {
		emit(line)
	}
	if !opts.Follow {
		return nil
	}

	poll := opts.Poll
	if poll <= 0 {
		poll = defaultPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		lines, offset, err = ReadFrom(path, offset)
		if err != nil {
			return err
		}
		for _, line := range lines {
			emit(line)
		}
	}
}

// Last returns up to n trailing lines of path and the offset just past them.
// A non-positive n returns every line.
func Last(path string, n int) ([]string, int64, error) {
	file, err := openLog(path)
	if file == nil || err != nil {
		return nil, 0, err
	}
	defer file.Close()

	var (
		ring  []string
		next  int
		total int
	)
	if n > 0 {
		ring = make([]string, n)
	}
	offset, err := scanLines(file, func(line string) {
		total++
		if n <= 0 {
			ring = append(ring, line)
			return
		}
		ring[next] = line
		next = (next + 1) % n
	})
	if err != nil {
		return nil, 0, err
	}
	if n <= 0 || total < n {
		return ring[:min(total, len(ring))], offset, nil
	}
	out := make([]string, 0, n)
	out = append(out, ring[next:]...)
	out = append(out, ring[:next]...)
	return out, offset, nil
}

// ReadFrom returns complete lines written after offset and the new offset.
// A file that shrank below offset was truncated or rotated and is read from
// the start.
func ReadFrom(path string, offset int64) ([]string, int64, error) {
	file, err := openLog(path)
	if file == nil || err != nil {
		return nil, 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || info.Size() < offset {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	read, err := scanLines(file, func(line string) { lines = append(lines, line) })
	if err != nil {
		return nil, offset, err
	}
	return lines, offset + read, nil
}

func openLog(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	return file, nil
}

// scanLines feeds every newline-terminated line to fn and returns the bytes
// consumed. A trailing partial line is left for the next read.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return consumed, nil
			}
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		text := line[:len(line)-1]
		if len(text) > maxLineBytes {
			text = text[:maxLineBytes]
		}
		if n := len(text); n > 0 && text[n-1] == '\r' {
			text = text[:n-1]
		}
		fn(text)
	}
}
