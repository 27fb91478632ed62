package classify

import (
	"bytes"
	"testing"

	"github.com/quillrpc/quill/pkg/wire"
)

func header(t *testing.T, id uint32, method string, kind wire.PayloadType, errCode int32) []byte {
	t.Helper()
	return wire.EncodeHeader(wire.Header{RequestID: id, PayloadType: kind, MethodName: method, ErrorCode: errCode})
}

func frame(framelets ...wire.Framelet) *wire.Frame {
	return &wire.Frame{Framelets: framelets}
}

// --- end-to-end Classify properties (§8) ------------------------------

func TestClassifyNullFrame(t *testing.T) {
	res := Classify(ModeRich, nil)
	if res.Disposition != Indeterminate {
		t.Errorf("Disposition = %v, want Indeterminate", res.Disposition)
	}
	if res.Headers != nil || res.Payload != nil {
		t.Errorf("got non-nil headers/payload: %+v", res)
	}
}

func TestClassifyEmptyFrame(t *testing.T) {
	res := Classify(ModeRich, frame())
	wantSendProtocolError(t, res, wire.ErrCodeMalformedData)
}

func TestClassifyRequestResponse(t *testing.T) {
	tests := []struct {
		name string
		kind wire.PayloadType
		want Disposition
	}{
		{name: "request", kind: wire.PayloadRequest, want: DeliverRequestToService},
		{name: "response", kind: wire.PayloadResponse, want: DeliverResponseToProxy},
	}

	for _, mode := range []Mode{ModeLean, ModeRich} {
		for _, tt := range tests {
			t.Run(mode.String()+"_"+tt.name, func(t *testing.T) {
				payload := []byte("E")
				f := frame(
					wire.Framelet{Type: wire.FrameletHeaders, Contents: header(t, 1, "ShaveYaks", tt.kind, 0)},
					wire.Framelet{Type: wire.FrameletPayloadData, Contents: payload},
				)

				res := Classify(mode, f)
				if res.Disposition != tt.want {
					t.Fatalf("Disposition = %v, want %v", res.Disposition, tt.want)
				}
				if res.Headers == nil {
					t.Fatal("Headers is nil")
				}
				if res.Headers.RequestID != 1 || res.Headers.MethodName != "ShaveYaks" {
					t.Errorf("Headers = %+v", res.Headers)
				}
				if !bytes.Equal(res.Payload, payload) {
					t.Errorf("Payload = %q, want %q", res.Payload, payload)
				}
			})
		}
	}
}

func TestClassifyEventLeanVsRich(t *testing.T) {
	f := frame(
		wire.Framelet{Type: wire.FrameletHeaders, Contents: header(t, 1, "m", wire.PayloadEvent, 0)},
		wire.Framelet{Type: wire.FrameletPayloadData, Contents: []byte("E")},
	)

	lean := Classify(ModeLean, f)
	wantSendProtocolError(t, lean, wire.ErrCodeNotSupported)

	rich := Classify(ModeRich, f)
	if rich.Disposition != DeliverEventToService {
		t.Errorf("rich Disposition = %v, want DeliverEventToService", rich.Disposition)
	}
}

func TestClassifyTrailingFramelet(t *testing.T) {
	f := frame(
		wire.Framelet{Type: wire.FrameletHeaders, Contents: header(t, 1, "m", wire.PayloadRequest, 0)},
		wire.Framelet{Type: wire.FrameletPayloadData, Contents: []byte("a")},
		wire.Framelet{Type: wire.FrameletPayloadData, Contents: []byte("b")},
	)
	res := Classify(ModeRich, f)
	wantSendProtocolError(t, res, wire.ErrCodeMalformedData)
}

func TestClassifyReversedFramelets(t *testing.T) {
	f := frame(
		wire.Framelet{Type: wire.FrameletPayloadData, Contents: []byte("a")},
		wire.Framelet{Type: wire.FrameletHeaders, Contents: header(t, 1, "m", wire.PayloadRequest, 0)},
	)
	res := Classify(ModeRich, f)
	wantSendProtocolError(t, res, wire.ErrCodeMalformedData)
}

func TestClassifyDuplicateHeaders(t *testing.T) {
	h := header(t, 1, "m", wire.PayloadRequest, 0)
	f := frame(
		wire.Framelet{Type: wire.FrameletHeaders, Contents: h},
		wire.Framelet{Type: wire.FrameletHeaders, Contents: h},
	)
	res := Classify(ModeRich, f)
	wantSendProtocolError(t, res, wire.ErrCodeMalformedData)
}

func TestClassifyMissingPayload(t *testing.T) {
	f := frame(wire.Framelet{Type: wire.FrameletHeaders, Contents: header(t, 1, "m", wire.PayloadRequest, 0)})
	res := Classify(ModeRich, f)
	wantSendProtocolError(t, res, wire.ErrCodeMalformedData)
}

func TestClassifyLayerData(t *testing.T) {
	f := frame(
		wire.Framelet{Type: wire.FrameletHeaders, Contents: header(t, 1, "m", wire.PayloadRequest, 0)},
		wire.Framelet{Type: wire.FrameletLayerData, Contents: []byte("mw")},
		wire.Framelet{Type: wire.FrameletPayloadData, Contents: []byte("p")},
	)

	res := Classify(ModeRich, f)
	if res.Disposition != DeliverRequestToService {
		t.Fatalf("Disposition = %v", res.Disposition)
	}
	if !bytes.Equal(res.LayerData, []byte("mw")) {
		t.Errorf("LayerData = %q", res.LayerData)
	}
	if !bytes.Equal(res.Payload, []byte("p")) {
		t.Errorf("Payload = %q", res.Payload)
	}
}

func TestClassifyLayerDataRejectedInLeanMode(t *testing.T) {
	f := frame(
		wire.Framelet{Type: wire.FrameletHeaders, Contents: header(t, 1, "m", wire.PayloadRequest, 0)},
		wire.Framelet{Type: wire.FrameletLayerData, Contents: []byte("mw")},
		wire.Framelet{Type: wire.FrameletPayloadData, Contents: []byte("p")},
	)
	res := Classify(ModeLean, f)
	wantSendProtocolError(t, res, wire.ErrCodeMalformedData)
}

func TestClassifyConfigFrame(t *testing.T) {
	f := frame(wire.Framelet{Type: wire.FrameletConfig, Contents: []byte("cfg")})

	res := Classify(ModeRich, f)
	if res.Disposition != ProcessConfig {
		t.Fatalf("Disposition = %v, want ProcessConfig", res.Disposition)
	}
	if res.Headers != nil {
		t.Errorf("Headers = %+v, want nil", res.Headers)
	}

	// Lean variant does not recognize Config at all.
	res = Classify(ModeLean, f)
	wantSendProtocolError(t, res, wire.ErrCodeMalformedData)
}

func TestClassifyConfigFrameExtraFramelet(t *testing.T) {
	f := frame(
		wire.Framelet{Type: wire.FrameletConfig, Contents: []byte("cfg")},
		wire.Framelet{Type: wire.FrameletPayloadData, Contents: []byte("x")},
	)
	res := Classify(ModeRich, f)
	wantSendProtocolError(t, res, wire.ErrCodeMalformedData)
}

func TestClassifyProtocolErrorFrame(t *testing.T) {
	f := frame(wire.Framelet{Type: wire.FrameletProtocolError, Contents: wire.EncodeProtocolError(wire.ProtocolError{Code: wire.ErrCodeNotSupported})})

	res := Classify(ModeRich, f)
	if res.Disposition != HandleProtocolError {
		t.Fatalf("Disposition = %v, want HandleProtocolError", res.Disposition)
	}
	if res.Err == nil {
		t.Error("Err is nil, want non-nil")
	}
	if res.ErrorCode == nil || *res.ErrorCode != wire.ErrCodeNotSupported {
		t.Errorf("ErrorCode = %v, want %v", res.ErrorCode, wire.ErrCodeNotSupported)
	}
}

func TestClassifyProtocolErrorFrameMalformed(t *testing.T) {
	tests := []struct {
		name string
		f    *wire.Frame
	}{
		{
			name: "extra_framelet",
			f: frame(
				wire.Framelet{Type: wire.FrameletProtocolError, Contents: wire.EncodeProtocolError(wire.ProtocolError{Code: wire.ErrCodeMalformedData})},
				wire.Framelet{Type: wire.FrameletPayloadData, Contents: []byte("x")},
			),
		},
		{
			name: "undecodable_contents",
			f:    frame(wire.Framelet{Type: wire.FrameletProtocolError, Contents: []byte{0x01}}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify(ModeRich, tt.f)
			if res.Disposition != HangUp {
				t.Fatalf("Disposition = %v, want HangUp", res.Disposition)
			}
			if res.ErrorCode == nil || *res.ErrorCode != wire.ErrCodeErrorInError {
				t.Errorf("ErrorCode = %v, want %v", res.ErrorCode, wire.ErrCodeErrorInError)
			}
		})
	}
}

func TestClassifyUnknownFirstFramelet(t *testing.T) {
	f := frame(wire.Framelet{Type: wire.FrameletType(0xBEEF), Contents: []byte("x")})
	res := Classify(ModeRich, f)
	wantSendProtocolError(t, res, wire.ErrCodeMalformedData)
}

func TestClassifyMalformedHeaderBytes(t *testing.T) {
	f := frame(
		wire.Framelet{Type: wire.FrameletHeaders, Contents: []byte{0xFF}},
		wire.Framelet{Type: wire.FrameletPayloadData, Contents: []byte("x")},
	)
	res := Classify(ModeRich, f)
	wantSendProtocolError(t, res, wire.ErrCodeMalformedData)
}

func TestClassifyIsIdempotentAndPure(t *testing.T) {
	f := frame(
		wire.Framelet{Type: wire.FrameletHeaders, Contents: header(t, 1, "m", wire.PayloadRequest, 0)},
		wire.Framelet{Type: wire.FrameletPayloadData, Contents: []byte("p")},
	)

	first := Classify(ModeRich, f)
	second := Classify(ModeRich, f)

	if first.Disposition != second.Disposition || first.Headers.RequestID != second.Headers.RequestID {
		t.Errorf("Classify is not idempotent: %+v vs %+v", first, second)
	}
}

// TestClassifyRoundTrip exercises §8's round-trip property: for all
// (id, method, kind, payload), classifying a frame built by
// wire.BuildFrame yields a disposition consistent with kind, the same
// id and method, and a payload slice that bytewise equals the input.
func TestClassifyRoundTrip(t *testing.T) {
	cases := []struct {
		id      uint32
		method  string
		kind    wire.PayloadType
		payload []byte
		want    Disposition
	}{
		{id: 1, method: "ShaveYaks", kind: wire.PayloadRequest, payload: []byte("abc"), want: DeliverRequestToService},
		{id: 3, method: "ShaveYaks", kind: wire.PayloadResponse, payload: []byte{}, want: DeliverResponseToProxy},
		{id: 1 << 31, method: "m", kind: wire.PayloadRequest, payload: bytes.Repeat([]byte{0xAB}, 4096), want: DeliverRequestToService},
	}

	for _, c := range cases {
		f := wire.BuildFrame(c.id, c.method, c.kind, 0, c.payload, nil)
		res := Classify(ModeRich, &f)
		if res.Disposition != c.want {
			t.Errorf("id=%d: Disposition = %v, want %v", c.id, res.Disposition, c.want)
		}
		if res.Headers == nil || res.Headers.RequestID != c.id || res.Headers.MethodName != c.method {
			t.Errorf("id=%d: Headers = %+v", c.id, res.Headers)
		}
		if !bytes.Equal(res.Payload, c.payload) {
			t.Errorf("id=%d: Payload mismatch", c.id)
		}
	}
}

func wantSendProtocolError(t *testing.T, res Result, code wire.ProtocolErrorCode) {
	t.Helper()
	if res.Disposition != SendProtocolError {
		t.Fatalf("Disposition = %v, want SendProtocolError", res.Disposition)
	}
	if res.ErrorCode == nil || *res.ErrorCode != code {
		t.Fatalf("ErrorCode = %v, want %v", res.ErrorCode, code)
	}
	if res.Headers != nil || res.Payload != nil {
		t.Fatalf("SendProtocolError result carries non-nil headers/payload: %+v", res)
	}
}

// --- per-transition properties (§8) -----------------------------------

// allStates is every concrete state type, used to test "wrong starting
// state" exhaustively for each transition.
func allStates() []classifyState {
	f := &wire.Frame{Framelets: []wire.Framelet{{Type: wire.FrameletHeaders, Contents: []byte("x")}}}
	h := &wire.Header{}
	return []classifyState{
		stateExpectFrame{frame: f},
		stateExpectFirstFramelet{frame: f},
		stateExpectHeaders{frame: f},
		stateExpectOptionalLayerData{frame: f, headers: h},
		stateExpectPayload{frame: f, headers: h},
		stateExpectEndOfFrame{frame: f, headers: h, payloadSet: true},
		stateFrameComplete{headers: h},
		stateValidFrame{headers: h},
		stateExpectConfig{frame: f},
		stateExpectProtocolError{frame: f},
		stateClassifiedValidFrame{},
		stateMalformedFrame{},
		stateErrorInErrorFrame{},
		stateInternalStateError{},
	}
}

func TestTransitionsRejectWrongStartingState(t *testing.T) {
	transitions := map[string]func(classifyState) classifyState{
		"transExpectFrame":             transExpectFrame,
		"transExpectFirstFramelet":     transExpectFirstFramelet,
		"transExpectHeaders":           transExpectHeaders,
		"transExpectOptionalLayerData": transExpectOptionalLayerData,
		"transExpectPayload":           transExpectPayload,
		"transExpectEndOfFrame":        transExpectEndOfFrame,
		"transFrameComplete":           transFrameComplete,
		"transValidFrame":              transValidFrame,
		"transExpectConfig":            transExpectConfig,
		"transExpectProtocolError":     transExpectProtocolError,
	}

	ownState := map[string]classifyState{
		"transExpectFrame":             stateExpectFrame{},
		"transExpectFirstFramelet":     stateExpectFirstFramelet{},
		"transExpectHeaders":           stateExpectHeaders{},
		"transExpectOptionalLayerData": stateExpectOptionalLayerData{},
		"transExpectPayload":           stateExpectPayload{},
		"transExpectEndOfFrame":        stateExpectEndOfFrame{},
		"transFrameComplete":           stateFrameComplete{},
		"transValidFrame":              stateValidFrame{},
		"transExpectConfig":            stateExpectConfig{},
		"transExpectProtocolError":     stateExpectProtocolError{},
	}

	for name, fn := range transitions {
		t.Run(name, func(t *testing.T) {
			for _, s := range allStates() {
				if sameKind(s, ownState[name]) {
					continue
				}
				got := fn(s)
				if _, ok := got.(stateInternalStateError); !ok {
					t.Errorf("%s(%T) = %T, want stateInternalStateError", name, s, got)
				}
			}
		})
	}
}

func sameKind(a, b classifyState) bool {
	switch a.(type) {
	case stateExpectFrame:
		_, ok := b.(stateExpectFrame)
		return ok
	case stateExpectFirstFramelet:
		_, ok := b.(stateExpectFirstFramelet)
		return ok
	case stateExpectHeaders:
		_, ok := b.(stateExpectHeaders)
		return ok
	case stateExpectOptionalLayerData:
		_, ok := b.(stateExpectOptionalLayerData)
		return ok
	case stateExpectPayload:
		_, ok := b.(stateExpectPayload)
		return ok
	case stateExpectEndOfFrame:
		_, ok := b.(stateExpectEndOfFrame)
		return ok
	case stateFrameComplete:
		_, ok := b.(stateFrameComplete)
		return ok
	case stateValidFrame:
		_, ok := b.(stateValidFrame)
		return ok
	case stateExpectConfig:
		_, ok := b.(stateExpectConfig)
		return ok
	case stateExpectProtocolError:
		_, ok := b.(stateExpectProtocolError)
		return ok
	default:
		return false
	}
}

func TestTransitionsRejectMissingPrerequisites(t *testing.T) {
	f := &wire.Frame{Framelets: []wire.Framelet{{Type: wire.FrameletHeaders, Contents: []byte("x")}}}
	h := &wire.Header{}

	tests := []struct {
		name string
		fn   func(classifyState) classifyState
		in   classifyState
	}{
		{"transExpectFrame_nil_frame", transExpectFrame, stateExpectFrame{frame: nil}},
		{"transExpectFirstFramelet_nil_frame", transExpectFirstFramelet, stateExpectFirstFramelet{frame: nil}},
		{"transExpectHeaders_nil_frame", transExpectHeaders, stateExpectHeaders{frame: nil}},
		{"transExpectOptionalLayerData_nil_frame", transExpectOptionalLayerData, stateExpectOptionalLayerData{frame: nil, headers: h}},
		{"transExpectOptionalLayerData_nil_headers", transExpectOptionalLayerData, stateExpectOptionalLayerData{frame: f, headers: nil}},
		{"transExpectPayload_nil_frame", transExpectPayload, stateExpectPayload{frame: nil, headers: h}},
		{"transExpectPayload_nil_headers", transExpectPayload, stateExpectPayload{frame: f, headers: nil}},
		{"transExpectEndOfFrame_nil_frame", transExpectEndOfFrame, stateExpectEndOfFrame{frame: nil, headers: h, payloadSet: true}},
		{"transExpectEndOfFrame_nil_headers", transExpectEndOfFrame, stateExpectEndOfFrame{frame: f, headers: nil, payloadSet: true}},
		{"transExpectEndOfFrame_payload_not_set", transExpectEndOfFrame, stateExpectEndOfFrame{frame: f, headers: h, payloadSet: false}},
		{"transFrameComplete_nil_headers", transFrameComplete, stateFrameComplete{headers: nil}},
		{"transValidFrame_nil_headers", transValidFrame, stateValidFrame{headers: nil}},
		{"transExpectConfig_nil_frame", transExpectConfig, stateExpectConfig{frame: nil}},
		{"transExpectProtocolError_nil_frame", transExpectProtocolError, stateExpectProtocolError{frame: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn(tt.in)
			if _, ok := got.(stateInternalStateError); !ok {
				t.Errorf("got %T, want stateInternalStateError", got)
			}
		})
	}
}

func TestTransitionHappyPaths(t *testing.T) {
	f := frame(
		wire.Framelet{Type: wire.FrameletHeaders, Contents: header(t, 1, "m", wire.PayloadRequest, 0)},
		wire.Framelet{Type: wire.FrameletPayloadData, Contents: []byte("p")},
	)

	s := transExpectFrame(stateExpectFrame{mode: ModeRich, frame: f})
	if _, ok := s.(stateExpectFirstFramelet); !ok {
		t.Fatalf("transExpectFrame -> %T, want stateExpectFirstFramelet", s)
	}

	s = transExpectFirstFramelet(s)
	if _, ok := s.(stateExpectHeaders); !ok {
		t.Fatalf("transExpectFirstFramelet -> %T, want stateExpectHeaders", s)
	}

	s = transExpectHeaders(s)
	if _, ok := s.(stateExpectOptionalLayerData); !ok {
		t.Fatalf("transExpectHeaders (rich) -> %T, want stateExpectOptionalLayerData", s)
	}

	s = transExpectOptionalLayerData(s)
	if _, ok := s.(stateExpectPayload); !ok {
		t.Fatalf("transExpectOptionalLayerData -> %T, want stateExpectPayload", s)
	}

	s = transExpectPayload(s)
	if _, ok := s.(stateExpectEndOfFrame); !ok {
		t.Fatalf("transExpectPayload -> %T, want stateExpectEndOfFrame", s)
	}

	s = transExpectEndOfFrame(s)
	if _, ok := s.(stateFrameComplete); !ok {
		t.Fatalf("transExpectEndOfFrame -> %T, want stateFrameComplete", s)
	}

	s = transFrameComplete(s)
	if _, ok := s.(stateValidFrame); !ok {
		t.Fatalf("transFrameComplete -> %T, want stateValidFrame", s)
	}

	s = transValidFrame(s)
	cv, ok := s.(stateClassifiedValidFrame)
	if !ok {
		t.Fatalf("transValidFrame -> %T, want stateClassifiedValidFrame", s)
	}
	if cv.result.Disposition != DeliverRequestToService {
		t.Errorf("Disposition = %v, want DeliverRequestToService", cv.result.Disposition)
	}
}

func TestTransitionMalformedOutcomes(t *testing.T) {
	tests := []struct {
		name string
		fn   func(classifyState) classifyState
		in   classifyState
		code wire.ProtocolErrorCode
	}{
		{
			name: "ExpectFirstFramelet_empty",
			fn:   transExpectFirstFramelet,
			in:   stateExpectFirstFramelet{frame: &wire.Frame{}},
			code: wire.ErrCodeMalformedData,
		},
		{
			name: "ExpectHeaders_bad_bytes",
			fn:   transExpectHeaders,
			in:   stateExpectHeaders{frame: frame(wire.Framelet{Type: wire.FrameletHeaders, Contents: []byte{0xFF}})},
			code: wire.ErrCodeMalformedData,
		},
		{
			name: "ExpectOptionalLayerData_too_short",
			fn:   transExpectOptionalLayerData,
			in: stateExpectOptionalLayerData{
				frame:   frame(wire.Framelet{Type: wire.FrameletHeaders}),
				headers: &wire.Header{},
			},
			code: wire.ErrCodeMalformedData,
		},
		{
			name: "ExpectPayload_wrong_type",
			fn:   transExpectPayload,
			in: stateExpectPayload{
				frame:   frame(wire.Framelet{Type: wire.FrameletHeaders}, wire.Framelet{Type: wire.FrameletHeaders}),
				headers: &wire.Header{}, index: 1,
			},
			code: wire.ErrCodeMalformedData,
		},
		{
			name: "ExpectEndOfFrame_extra",
			fn:   transExpectEndOfFrame,
			in: stateExpectEndOfFrame{
				frame:      frame(wire.Framelet{}, wire.Framelet{}, wire.Framelet{}),
				headers:    &wire.Header{},
				payloadSet: true,
			},
			code: wire.ErrCodeMalformedData,
		},
		{
			name: "FrameComplete_unsupported_payload_type",
			fn:   transFrameComplete,
			in:   stateFrameComplete{headers: &wire.Header{PayloadType: wire.PayloadType(99)}},
			code: wire.ErrCodeNotSupported,
		},
		{
			name: "ExpectConfig_wrong_count",
			fn:   transExpectConfig,
			in:   stateExpectConfig{frame: frame(wire.Framelet{}, wire.Framelet{})},
			code: wire.ErrCodeMalformedData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn(tt.in)
			mf, ok := got.(stateMalformedFrame)
			if !ok {
				t.Fatalf("got %T, want stateMalformedFrame", got)
			}
			if mf.code != tt.code {
				t.Errorf("code = %v, want %v", mf.code, tt.code)
			}
		})
	}
}
