package openai_compatible

import (
	"bufio"
	"bytes"
	"io"

	"github.com/Laisky/errors/v2"

	"github.com/apimirror/gateway/common/helper"
)

// ScanSSELines is a bufio.SplitFunc that frames SSE text lines. Upstreams
// disagree on terminators, so it accepts "\r\n", "\n" and a bare "\r",
// and flushes a non-empty trailing buffer when the stream ends without a
// final terminator.
func ScanSSELines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		token = data[:i]
		if data[i] == '\n' {
			return i + 1, token, nil
		}
		// "\r" last in the buffer may be half of "\r\n"; wait for one
		// more byte unless the stream already ended.
		if i == len(data)-1 {
			if !atEOF {
				return 0, nil, nil
			}
			return i + 1, token, nil
		}
		if data[i+1] == '\n' {
			return i + 2, token, nil
		}
		return i + 1, token, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

type lineStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// NewLineStream wraps an SSE response body into a LineStream that yields
// each non-blank line verbatim.
func NewLineStream(body io.ReadCloser) *lineStream {
	scanner := bufio.NewScanner(body)
	helper.ConfigureScannerBuffer(scanner)
	scanner.Split(ScanSSELines)
	return &lineStream{body: body, scanner: scanner}
}

func (s *lineStream) Next() (string, bool, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if len(line) == 0 {
			continue
		}
		return line, true, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", false, errors.Wrap(err, "read upstream stream")
	}
	return "", false, nil
}

func (s *lineStream) Close() error {
	return s.body.Close()
}
