package iocli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdio_Print(t *testing.T) {
	var out bytes.Buffer
	stdio := NewStdio(strings.NewReader(""), &out)

	stdio.Println("hello", "world")
	stdio.Printf("count %d %s\n", 1, "abc")
	_, err := stdio.Write([]byte("raw"))
	require.NoError(t, err)

	assert.Equal(t, "hello world\ncount 1 abc\nraw", out.String())
}

func TestStdio_ReadInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "line", input: "yes\n", expected: "yes"},
		{name: "trimmed", input: "  y \r\n", expected: "y"},
		{name: "no trailing newline", input: "no", expected: "no"},
		{name: "empty input", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			stdio := NewStdio(strings.NewReader(tt.input), &out)

			got, err := stdio.ReadInput("Continue? ")
			assert.Equal(t, "Continue? ", out.String())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
