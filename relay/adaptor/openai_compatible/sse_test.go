package openai_compatible

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, input string) []string {
	t.Helper()
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(ScanSSELines)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestScanSSELinesTerminators(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"lf", "data: a\ndata: b\n", []string{"data: a", "data: b"}},
		{"crlf", "data: a\r\ndata: b\r\n", []string{"data: a", "data: b"}},
		{"cr", "data: a\rdata: b\r", []string{"data: a", "data: b"}},
		{"mixed", "data: a\r\ndata: b\ndata: c\r", []string{"data: a", "data: b", "data: c"}},
		{"blank lines preserved", "data: a\n\ndata: b\n", []string{"data: a", "", "data: b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, scanAll(t, tt.input))
		})
	}
}

func TestScanSSELinesFlushesTrailingBuffer(t *testing.T) {
	t.Parallel()
	// A stream cut off mid-event still yields the partial line.
	require.Equal(t, []string{"data: a", "data: parti"}, scanAll(t, "data: a\ndata: parti"))
}

func TestScanSSELinesSplitCRLFAcrossReads(t *testing.T) {
	t.Parallel()
	// A "\r" at the end of one read followed by "\n" in the next must
	// frame a single line, not a line plus a blank.
	reader := io.MultiReader(
		strings.NewReader("data: a\r"),
		strings.NewReader("\ndata: b\n"),
	)
	scanner := bufio.NewScanner(reader)
	scanner.Split(ScanSSELines)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	require.Equal(t, []string{"data: a", "data: b"}, lines)
}

func TestLineStreamSkipsBlankLines(t *testing.T) {
	t.Parallel()
	body := io.NopCloser(strings.NewReader("data: a\n\ndata: b\n\ndata: [DONE]\n\n"))
	stream := NewLineStream(body)
	defer func() { _ = stream.Close() }()

	var lines []string
	for {
		line, ok, err := stream.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		lines = append(lines, line)
	}
	require.Equal(t, []string{"data: a", "data: b", "data: [DONE]"}, lines)
}
