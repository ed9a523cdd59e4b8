package helper

import (
	"bufio"
	"crypto/rand"
	"time"
)

const base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenRequestID returns a chat completion request identifier of the form
// "chatcmpl-" followed by 32 base36 characters. The same id is echoed as
// `id` on every downstream SSE event and in non-streaming responses.
func GenRequestID() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// timestamp-seeded suffix to keep ids unique rather than panic.
		ts := time.Now().UnixNano()
		for i := range buf {
			buf[i] = byte(ts >> (uint(i%8) * 8))
		}
	}
	for i, b := range buf {
		buf[i] = base36Chars[int(b)%len(base36Chars)]
	}
	return "chatcmpl-" + string(buf)
}

const (
	scannerInitialBufferSize = 64 * 1024
	scannerMaxTokenSize      = 32 * 1024 * 1024
)

// ConfigureScannerBuffer sizes a scanner for large SSE payloads. Single
// events can exceed bufio's default 64KB token limit on long completions.
func ConfigureScannerBuffer(scanner *bufio.Scanner) {
	if scanner == nil {
		return
	}
	scanner.Buffer(make([]byte, scannerInitialBufferSize), scannerMaxTokenSize)
}
