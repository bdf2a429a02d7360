package dtlstransport

import (
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/srtp/v3"

	"github.com/nexusrtc/rtcd/errs"
)

// SRTPContext wraps the pair of SRTP crypto contexts keyed off one DTLS
// handshake's exported material: one to protect what we send, one to
// unprotect what arrives, per spec.md §4.6/§6.3's "derive SRTP/SRTCP keys
// and hand them to the media layer" step.
//
// Grounded on the same split the teacher's own internal/srtp session pair
// uses (separate local/remote Context per direction), built here directly
// on github.com/pion/srtp/v3's packet-oriented Context rather than its
// net.Conn-wrapping Session, since bytes already arrive demultiplexed off
// the ICE-selected tuple rather than through a dedicated connection.
type SRTPContext struct {
	local  *srtp.Context
	remote *srtp.Context
}

// NewSRTPContext derives local/remote SRTP contexts from exported keying
// material, splitting it into the client/server halves per RFC 5764 §4.2.
func NewSRTPContext(material KeyingMaterial, profile srtp.ProtectionProfile) (*SRTPContext, error) {
	local, err := srtp.CreateContext(material.LocalKey, material.LocalSalt, profile)
	if err != nil {
		return nil, errs.New(errs.Protocol, err)
	}
	remote, err := srtp.CreateContext(material.RemoteKey, material.RemoteSalt, profile)
	if err != nil {
		return nil, errs.New(errs.Protocol, err)
	}
	return &SRTPContext{local: local, remote: remote}, nil
}

// EncryptRTP protects an outbound RTP packet for the wire.
func (c *SRTPContext) EncryptRTP(dst []byte, pkt *rtp.Packet) ([]byte, error) {
	raw, err := pkt.Marshal()
	if err != nil {
		return nil, errs.New(errs.Invalid, err)
	}
	out, err := c.local.EncryptRTP(dst, raw, &pkt.Header)
	if err != nil {
		return nil, errs.New(errs.Protocol, err)
	}
	return out, nil
}

// DecryptRTP unprotects an inbound SRTP packet read off the wire.
func (c *SRTPContext) DecryptRTP(dst, encrypted []byte) (*rtp.Packet, []byte, error) {
	out, err := c.remote.DecryptRTP(dst, encrypted, nil)
	if err != nil {
		return nil, nil, errs.New(errs.Protocol, err)
	}
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(out); err != nil {
		return nil, nil, errs.New(errs.Invalid, err)
	}
	return pkt, out, nil
}

// EncryptRTCP protects an outbound RTCP compound packet.
func (c *SRTPContext) EncryptRTCP(dst []byte, pkts []rtcp.Packet) ([]byte, error) {
	raw, err := rtcp.Marshal(pkts)
	if err != nil {
		return nil, errs.New(errs.Invalid, err)
	}
	out, err := c.local.EncryptRTCP(dst, raw, nil)
	if err != nil {
		return nil, errs.New(errs.Protocol, err)
	}
	return out, nil
}

// DecryptRTCP unprotects an inbound SRTCP compound packet.
func (c *SRTPContext) DecryptRTCP(dst, encrypted []byte) ([]rtcp.Packet, error) {
	out, err := c.remote.DecryptRTCP(dst, encrypted, nil)
	if err != nil {
		return nil, errs.New(errs.Protocol, err)
	}
	pkts, err := rtcp.Unmarshal(out)
	if err != nil {
		return nil, errs.New(errs.Invalid, err)
	}
	return pkts, nil
}
