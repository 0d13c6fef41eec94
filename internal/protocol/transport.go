package protocol

import "encoding/base64"

// TransportString encodes the whole buffer as standard padded base64, one
// packet per string. Framing on byte streams is the transport's job.
func (p *Packet) TransportString() string {
	return base64.StdEncoding.EncodeToString(p.data)
}

// FromTransportString is the inverse of TransportString. Input that is not
// valid base64 fails with a *DecodeError. Anything that decodes is taken
// verbatim: header, length and checksum are not checked.
func FromTransportString(s string) (*Packet, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &Packet{data: data}, nil
}
