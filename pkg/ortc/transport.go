package ortc

// IceParameters are the local ICE credentials of a transport.
type IceParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	IceLite          bool   `json:"iceLite,omitempty"`
}

// IceCandidate is a gathered local ICE candidate.
type IceCandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
	TCPType    string `json:"tcpType,omitempty"`
}

// DtlsRole is the DTLS role of an endpoint.
type DtlsRole string

const (
	DtlsRoleAuto   DtlsRole = "auto"
	DtlsRoleClient DtlsRole = "client"
	DtlsRoleServer DtlsRole = "server"
)

// DtlsFingerprint is a certificate fingerprint and its hash algorithm.
type DtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// DtlsParameters are the DTLS role and certificate fingerprints of an endpoint.
type DtlsParameters struct {
	Role         DtlsRole          `json:"role,omitempty"`
	Fingerprints []DtlsFingerprint `json:"fingerprints"`
}

// NumSctpStreams is the number of outgoing (OS) and maximum incoming (MIS)
// SCTP streams of an association.
type NumSctpStreams struct {
	OS  uint16 `json:"OS"`
	MIS uint16 `json:"MIS"`
}

// SctpCapabilities are the SCTP capabilities declared by an endpoint.
type SctpCapabilities struct {
	NumStreams NumSctpStreams `json:"numStreams"`
}

// SctpParameters are the SCTP association parameters of a transport.
type SctpParameters struct {
	Port           uint16 `json:"port"`
	OS             uint16 `json:"OS"`
	MIS            uint16 `json:"MIS"`
	MaxMessageSize uint32 `json:"maxMessageSize"`
}

// DefaultNumSctpStreams is used when SCTP is enabled without declared capabilities.
var DefaultNumSctpStreams = NumSctpStreams{OS: 1024, MIS: 1024}

// SctpPort is the SCTP port announced for data channels.
const SctpPort = 5000
