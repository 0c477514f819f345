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

const followPoll = 250 * time.Millisecond

// TailOptions controls a Tail call. A negative Offset returns the last Limit
// lines; otherwise reading starts at Offset. With Follow set and nothing new
// to return, Tail polls for up to Wait before giving up.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	// Match drops lines for which it returns false. Dropped lines still
	// advance the offset.
	Match func(line string) bool
}

// TailResult carries the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from the log at path. A missing file is not an error.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		if opts.Follow && opts.Wait > 0 {
			return poll(ctx, path, 0, opts.Wait, opts.Match)
		}
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	var result TailResult
	if opts.Offset < 0 {
		result, err = lastLines(path, opts.Limit, opts.Match)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			// The file was truncated or rotated; start over.
			offset = 0
		}
		result, err = readFrom(path, offset, opts.Match)
	}
	if err != nil {
		return result, err
	}
	if len(result.Lines) == 0 && opts.Follow && opts.Wait > 0 {
		return poll(ctx, path, result.Offset, opts.Wait, opts.Match)
	}
	return result, nil
}

func lastLines(path string, limit int, match func(string) bool) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return TailResult{}, fmt.Errorf("seek log file: %w", err)
		}
		return TailResult{Offset: end}, nil
	}

	ring := make([]string, 0, limit)
	head := 0
	end, err := scanLines(file, func(line string) {
		if match != nil && !match(line) {
			return
		}
		if len(ring) < limit {
			ring = append(ring, line)
			return
		}
		ring[head] = line
		head = (head + 1) % limit
	})
	if err != nil {
		return TailResult{}, err
	}
	lines := append(append([]string{}, ring[head:]...), ring[:head]...)
	return TailResult{Lines: lines, Offset: end}, nil
}

func readFrom(path string, offset int64, match func(string) bool) (TailResult, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	end, err := scanLines(file, func(line string) {
		if match == nil || match(line) {
			lines = append(lines, line)
		}
	})
	if err != nil {
		return TailResult{Offset: offset}, err
	}
	return TailResult{Lines: lines, Offset: end}, nil
}

// scanLines feeds every complete line to fn and returns the offset just past
// the last one. A trailing partial line is left for the next read.
func scanLines(file *os.File, fn func(string)) (int64, error) {
	start, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	offset := start
	for {
		chunk, err := reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			// Overlong line: consume the remainder and skip it.
			skipped := int64(len(chunk))
			for errors.Is(err, bufio.ErrBufferFull) {
				chunk, err = reader.ReadSlice('\n')
				skipped += int64(len(chunk))
			}
			if err == nil {
				offset += skipped
				continue
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return offset, nil
			}
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(chunk))
		line := chunk[:len(chunk)-1]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		fn(string(line))
	}
}

func poll(ctx context.Context, path string, offset int64, wait time.Duration, match func(string) bool) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(followPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-ticker.C:
		}
		result, err := readFrom(path, offset, match)
		if err != nil {
			return result, err
		}
		offset = result.Offset
		if len(result.Lines) > 0 || !time.Now().Before(deadline) {
			return result, nil
		}
	}
}
