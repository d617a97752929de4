// ABOUTME: Tests for the frame packet container
// ABOUTME: Covers splitting, concatenation and truncation
package audio

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketContainer(t *testing.T) {
	var frame []byte
	frame, err := AppendPacket(frame, []byte{1, 2, 3})
	require.NoError(t, err)
	frame, err = AppendPacket(frame, []byte{})
	require.NoError(t, err)
	frame, err = AppendPacket(frame, []byte{4})
	require.NoError(t, err)

	packets, err := SplitPackets(frame)
	require.NoError(t, err)
	require.Len(t, packets, 3)
	assert.Equal(t, []byte{1, 2, 3}, packets[0])
	assert.Empty(t, packets[1])
	assert.Equal(t, []byte{4}, packets[2])
}

func TestPacketContainerConcatenation(t *testing.T) {
	a, _ := AppendPacket(nil, []byte{0xAA})
	b, _ := AppendPacket(nil, []byte{0xBB, 0xBC})

	packets, err := SplitPackets(append(a, b...))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0xAA}, {0xBB, 0xBC}}, packets)
}

func TestSplitPacketsTruncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"half header", []byte{0x00}},
		{"short body", []byte{0x00, 0x05, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SplitPackets(tt.data)
			assert.True(t, errors.Is(err, ErrTruncatedFrame))
		})
	}
}

func TestAppendPacketTooLarge(t *testing.T) {
	_, err := AppendPacket(nil, make([]byte, MaxPacketSize+1))
	assert.Error(t, err)
}
