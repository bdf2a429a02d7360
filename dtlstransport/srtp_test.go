package dtlstransport

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/srtp/v3"
	"github.com/stretchr/testify/require"
)

func TestSRTPContextRTPRoundTrip(t *testing.T) {
	material := KeyingMaterial{
		LocalKey:   make([]byte, 16),
		LocalSalt:  make([]byte, 14),
		RemoteKey:  make([]byte, 16),
		RemoteSalt: make([]byte, 14),
	}
	for i := range material.LocalKey {
		material.LocalKey[i] = byte(i)
		material.RemoteKey[i] = byte(i)
	}
	for i := range material.LocalSalt {
		material.LocalSalt[i] = byte(i + 1)
		material.RemoteSalt[i] = byte(i + 1)
	}

	sender, err := NewSRTPContext(material, srtp.ProtectionProfileAes128CmHmacSha1_80)
	require.NoError(t, err)
	receiver, err := NewSRTPContext(material, srtp.ProtectionProfileAes128CmHmacSha1_80)
	require.NoError(t, err)

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    111,
			SequenceNumber: 1000,
			Timestamp:      3000,
			SSRC:           0xCAFEBABE,
		},
		Payload: []byte{0x01, 0x02, 0x03, 0x04},
	}

	encrypted, err := sender.EncryptRTP(nil, pkt)
	require.NoError(t, err)

	decoded, _, err := receiver.DecryptRTP(nil, encrypted)
	require.NoError(t, err)
	require.Equal(t, pkt.SSRC, decoded.SSRC)
	require.Equal(t, pkt.SequenceNumber, decoded.SequenceNumber)
	require.Equal(t, pkt.Payload, decoded.Payload)
}
