package wire

// BuildFrame constructs a message frame (component F, the outbound
// framer) in the one canonical order the wire format allows: Headers,
// then an optional LayerData, then PayloadData.
//
// requestID/method/kind/errorCode become the Headers framelet; errorCode
// is written as given for every kind, and a nonzero value marks an
// application-level failure on a Response.
func BuildFrame(requestID uint32, method string, kind PayloadType, errorCode int32, payload, layerData []byte) Frame {
	h := Header{
		RequestID:   requestID,
		PayloadType: kind,
		MethodName:  method,
		ErrorCode:   errorCode,
	}

	framelets := make([]Framelet, 0, 3)
	framelets = append(framelets, Framelet{Type: FrameletHeaders, Contents: EncodeHeader(h)})
	if layerData != nil {
		framelets = append(framelets, Framelet{Type: FrameletLayerData, Contents: layerData})
	}
	framelets = append(framelets, Framelet{Type: FrameletPayloadData, Contents: payload})

	return Frame{Framelets: framelets}
}

// BuildConfigFrame constructs a configuration frame: a single Config
// framelet.
func BuildConfigFrame(c ConfigRecord) Frame {
	return Frame{Framelets: []Framelet{{Type: FrameletConfig, Contents: c.Contents}}}
}

// BuildProtocolErrorFrame constructs an error frame: a single
// ProtocolError framelet encoding code as a single little-endian u32.
func BuildProtocolErrorFrame(code ProtocolErrorCode) Frame {
	return Frame{Framelets: []Framelet{{Type: FrameletProtocolError, Contents: EncodeProtocolError(ProtocolError{Code: code})}}}
}
