package sctpassoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelOpenRoundTrip(t *testing.T) {
	open := ChannelOpen{
		ChannelType: ChannelReliableUnordered,
		Priority:    128,
		Label:       "chat",
		Protocol:    "",
	}

	raw := open.Marshal()
	decoded, err := UnmarshalChannelOpen(raw)
	require.NoError(t, err)

	assert.Equal(t, open.ChannelType, decoded.ChannelType)
	assert.Equal(t, open.Priority, decoded.Priority)
	assert.Equal(t, open.Label, decoded.Label)
}

func TestChannelOpenReliabilityOrdered(t *testing.T) {
	open := ChannelOpen{ChannelType: ChannelReliable}
	rel := open.Reliability()
	assert.True(t, rel.Ordered)
	assert.Nil(t, rel.MaxRetransmits)
}

func TestChannelOpenReliabilityPartialRexmitUnordered(t *testing.T) {
	open := ChannelOpen{ChannelType: ChannelPartialReliableRexmitUnordered, ReliabilityParameter: 3}
	rel := open.Reliability()
	assert.False(t, rel.Ordered)
	require.NotNil(t, rel.MaxRetransmits)
	assert.Equal(t, uint16(3), *rel.MaxRetransmits)
}

func TestUnmarshalChannelOpenRejectsShortBuffer(t *testing.T) {
	_, err := UnmarshalChannelOpen([]byte{0x03, 0x00})
	assert.Error(t, err)
}

func TestIsChannelAck(t *testing.T) {
	assert.True(t, IsChannelAck(MarshalChannelAck()))
	assert.False(t, IsChannelAck([]byte{0x03}))
}
