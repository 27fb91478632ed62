// Package classify implements the frame protocol classifier: a
// deterministic, total, allocation-light state machine that turns an
// already-decoded [wire.Frame] into a [Result] describing what the
// surrounding connection should do next.
//
// The classifier is pure and synchronous. It never performs I/O, never
// suspends, and never panics: every malformed or internally
// inconsistent input maps to a specific Result rather than an error
// return, because the classifier itself is the answer the caller
// needs, not a side channel to one.
//
// The state machine is modeled as a small sum type: each named state
// from the design is its own Go struct carrying exactly the data that
// state has established so far, and every transition is a function
// from one concrete state type to the generic [classifyState]
// interface. This makes "invoke transition X while the machine is
// actually in state Y" and "invoke transition X with a missing
// prerequisite" directly expressible as unit tests, independent of
// driving the whole machine through [Classify].
package classify

import (
	"fmt"

	"github.com/quillrpc/quill/pkg/wire"
)

// Mode selects between the lean variant (Request/Response only, no
// layer data, no Config/ProtocolError frames) and the rich variant
// (adds optional layer data, Event delivery, Config and ProtocolError
// frames).
type Mode int

const (
	// ModeLean is the request/response/event-less variant.
	ModeLean Mode = iota
	// ModeRich is the full variant.
	ModeRich
)

func (m Mode) String() string {
	if m == ModeRich {
		return "rich"
	}
	return "lean"
}

// Disposition is the classifier's output directive to the dispatcher.
type Disposition int

const (
	// Indeterminate marks an internal bug in the classifier itself
	// (or a null frame). It is never a wire-format judgment.
	Indeterminate Disposition = iota
	DeliverRequestToService
	DeliverResponseToProxy
	DeliverEventToService
	ProcessConfig
	HandleProtocolError
	SendProtocolError
	HangUp
)

func (d Disposition) String() string {
	switch d {
	case Indeterminate:
		return "Indeterminate"
	case DeliverRequestToService:
		return "DeliverRequestToService"
	case DeliverResponseToProxy:
		return "DeliverResponseToProxy"
	case DeliverEventToService:
		return "DeliverEventToService"
	case ProcessConfig:
		return "ProcessConfig"
	case HandleProtocolError:
		return "HandleProtocolError"
	case SendProtocolError:
		return "SendProtocolError"
	case HangUp:
		return "HangUp"
	default:
		return fmt.Sprintf("Disposition(%d)", int(d))
	}
}

// Result is the classifier's total output for one frame.
type Result struct {
	Disposition Disposition
	Headers     *wire.Header
	LayerData   []byte
	Payload     []byte
	Err         error
	ErrorCode   *wire.ProtocolErrorCode
}

// classifyState is the sum type's common interface. Every named state
// from the design implements it with a distinct concrete type; a
// transition function type-asserts its expected predecessor type and
// returns InternalStateError for any mismatch.
type classifyState interface {
	isClassifyState()
}

// maxTransitions bounds the number of transitions Classify will apply
// to a single frame before giving up and returning Indeterminate. It
// is set to the number of named states in the design (§4.C's safety
// net): no correct execution should ever reach it, since the longest
// real path (ExpectFrame through ClassifiedValidFrame in rich mode) is
// eight transitions.
const maxTransitions = 14

// --- concrete states -------------------------------------------------

type stateExpectFrame struct {
	mode  Mode
	frame *wire.Frame
}

func (stateExpectFrame) isClassifyState() {}

type stateExpectFirstFramelet struct {
	mode  Mode
	frame *wire.Frame
}

func (stateExpectFirstFramelet) isClassifyState() {}

type stateExpectHeaders struct {
	mode  Mode
	frame *wire.Frame
}

func (stateExpectHeaders) isClassifyState() {}

type stateExpectOptionalLayerData struct {
	mode    Mode
	frame   *wire.Frame
	headers *wire.Header
}

func (stateExpectOptionalLayerData) isClassifyState() {}

type stateExpectPayload struct {
	mode         Mode
	frame        *wire.Frame
	headers      *wire.Header
	hasLayerData bool
	layerData    []byte
	index        int
}

func (stateExpectPayload) isClassifyState() {}

type stateExpectEndOfFrame struct {
	mode         Mode
	frame        *wire.Frame
	headers      *wire.Header
	hasLayerData bool
	layerData    []byte
	payload      []byte
	payloadSet   bool
}

func (stateExpectEndOfFrame) isClassifyState() {}

type stateFrameComplete struct {
	mode         Mode
	headers      *wire.Header
	hasLayerData bool
	layerData    []byte
	payload      []byte
}

func (stateFrameComplete) isClassifyState() {}

type stateValidFrame struct {
	mode         Mode
	headers      *wire.Header
	hasLayerData bool
	layerData    []byte
	payload      []byte
}

func (stateValidFrame) isClassifyState() {}

type stateExpectConfig struct {
	frame *wire.Frame
}

func (stateExpectConfig) isClassifyState() {}

type stateExpectProtocolError struct {
	frame *wire.Frame
}

func (stateExpectProtocolError) isClassifyState() {}

// Terminal states.

type stateClassifiedValidFrame struct {
	result Result
}

func (stateClassifiedValidFrame) isClassifyState() {}

type stateMalformedFrame struct {
	code wire.ProtocolErrorCode
}

func (stateMalformedFrame) isClassifyState() {}

type stateErrorInErrorFrame struct{}

func (stateErrorInErrorFrame) isClassifyState() {}

type stateInternalStateError struct{}

func (stateInternalStateError) isClassifyState() {}

// terminal, if s is a terminal state, returns its Result and true.
func terminal(s classifyState) (Result, bool) {
	switch v := s.(type) {
	case stateClassifiedValidFrame:
		return v.result, true
	case stateMalformedFrame:
		code := v.code
		return Result{Disposition: SendProtocolError, ErrorCode: &code}, true
	case stateErrorInErrorFrame:
		code := wire.ErrCodeErrorInError
		return Result{
			Disposition: HangUp,
			Err:         fmt.Errorf("protocol error frame itself is malformed"),
			ErrorCode:   &code,
		}, true
	case stateInternalStateError:
		return Result{Disposition: Indeterminate}, true
	default:
		return Result{}, false
	}
}

// Classify is the total, pure driver: it folds an initial
// stateExpectFrame through transitions until a terminal state is
// reached, or until maxTransitions is exceeded (which can only happen
// due to a bug in this package, never due to caller input).
func Classify(mode Mode, frame *wire.Frame) Result {
	var cur classifyState = stateExpectFrame{mode: mode, frame: frame}

	for i := 0; i < maxTransitions; i++ {
		if res, ok := terminal(cur); ok {
			return res
		}
		cur = step(cur)
	}

	return Result{Disposition: Indeterminate}
}

// step applies the one transition function whose name corresponds to
// cur's concrete type. It exists only to keep Classify a short fold;
// the transition functions themselves are the tested units.
func step(cur classifyState) classifyState {
	switch cur.(type) {
	case stateExpectFrame:
		return transExpectFrame(cur)
	case stateExpectFirstFramelet:
		return transExpectFirstFramelet(cur)
	case stateExpectHeaders:
		return transExpectHeaders(cur)
	case stateExpectOptionalLayerData:
		return transExpectOptionalLayerData(cur)
	case stateExpectPayload:
		return transExpectPayload(cur)
	case stateExpectEndOfFrame:
		return transExpectEndOfFrame(cur)
	case stateFrameComplete:
		return transFrameComplete(cur)
	case stateValidFrame:
		return transValidFrame(cur)
	case stateExpectConfig:
		return transExpectConfig(cur)
	case stateExpectProtocolError:
		return transExpectProtocolError(cur)
	default:
		return stateInternalStateError{}
	}
}

func malformed(code wire.ProtocolErrorCode) classifyState {
	return stateMalformedFrame{code: code}
}

// --- transitions -------------------------------------------------
//
// Every transition below follows the same contract (§4.C's "per-
// transition precondition guards"):
//  1. type-assert the input to the one concrete state type this
//     transition accepts; any other type is an InternalStateError.
//  2. check that every field the transition needs is present (non-nil);
//     a missing prerequisite is an InternalStateError.
//  3. only then apply the documented business rule.

// transExpectFrame: frame == nil -> InternalStateError; otherwise ->
// ExpectFirstFramelet. (Here the "required input" guard and the
// documented business rule coincide: a null frame is simultaneously
// the classifier's entry-point null case and the generic missing-
// prerequisite case.)
func transExpectFrame(s classifyState) classifyState {
	v, ok := s.(stateExpectFrame)
	if !ok {
		return stateInternalStateError{}
	}
	if v.frame == nil {
		return stateInternalStateError{}
	}
	return stateExpectFirstFramelet{mode: v.mode, frame: v.frame}
}

func transExpectFirstFramelet(s classifyState) classifyState {
	v, ok := s.(stateExpectFirstFramelet)
	if !ok {
		return stateInternalStateError{}
	}
	if v.frame == nil {
		return stateInternalStateError{}
	}

	if len(v.frame.Framelets) == 0 {
		return malformed(wire.ErrCodeMalformedData)
	}

	switch v.frame.Framelets[0].Type {
	case wire.FrameletHeaders:
		return stateExpectHeaders{mode: v.mode, frame: v.frame}
	case wire.FrameletConfig:
		if v.mode != ModeRich {
			return malformed(wire.ErrCodeMalformedData)
		}
		return stateExpectConfig{frame: v.frame}
	case wire.FrameletProtocolError:
		if v.mode != ModeRich {
			return malformed(wire.ErrCodeMalformedData)
		}
		return stateExpectProtocolError{frame: v.frame}
	default:
		return malformed(wire.ErrCodeMalformedData)
	}
}

func transExpectHeaders(s classifyState) classifyState {
	v, ok := s.(stateExpectHeaders)
	if !ok {
		return stateInternalStateError{}
	}
	if v.frame == nil {
		return stateInternalStateError{}
	}

	h, err := wire.DecodeHeader(v.frame.Framelets[0].Contents)
	if err != nil {
		return malformed(wire.ErrCodeMalformedData)
	}

	if v.mode == ModeLean {
		return stateExpectPayload{mode: v.mode, frame: v.frame, headers: &h, index: 1}
	}
	return stateExpectOptionalLayerData{mode: v.mode, frame: v.frame, headers: &h}
}

func transExpectOptionalLayerData(s classifyState) classifyState {
	v, ok := s.(stateExpectOptionalLayerData)
	if !ok {
		return stateInternalStateError{}
	}
	if v.frame == nil || v.headers == nil {
		return stateInternalStateError{}
	}

	if len(v.frame.Framelets) < 2 {
		return malformed(wire.ErrCodeMalformedData)
	}

	switch v.frame.Framelets[1].Type {
	case wire.FrameletPayloadData:
		return stateExpectPayload{mode: v.mode, frame: v.frame, headers: v.headers, index: 1}
	case wire.FrameletLayerData:
		return stateExpectPayload{
			mode: v.mode, frame: v.frame, headers: v.headers,
			hasLayerData: true, layerData: v.frame.Framelets[1].Contents, index: 2,
		}
	default:
		return malformed(wire.ErrCodeMalformedData)
	}
}

func transExpectPayload(s classifyState) classifyState {
	v, ok := s.(stateExpectPayload)
	if !ok {
		return stateInternalStateError{}
	}
	if v.frame == nil || v.headers == nil {
		return stateInternalStateError{}
	}

	if v.index >= len(v.frame.Framelets) || v.frame.Framelets[v.index].Type != wire.FrameletPayloadData {
		return malformed(wire.ErrCodeMalformedData)
	}

	return stateExpectEndOfFrame{
		mode: v.mode, frame: v.frame, headers: v.headers,
		hasLayerData: v.hasLayerData, layerData: v.layerData,
		payload: v.frame.Framelets[v.index].Contents, payloadSet: true,
	}
}

func transExpectEndOfFrame(s classifyState) classifyState {
	v, ok := s.(stateExpectEndOfFrame)
	if !ok {
		return stateInternalStateError{}
	}
	if v.frame == nil || v.headers == nil || !v.payloadSet {
		return stateInternalStateError{}
	}

	expected := 2
	if v.hasLayerData {
		expected = 3
	}
	if len(v.frame.Framelets) != expected {
		return malformed(wire.ErrCodeMalformedData)
	}

	return stateFrameComplete{
		mode: v.mode, headers: v.headers,
		hasLayerData: v.hasLayerData, layerData: v.layerData, payload: v.payload,
	}
}

func transFrameComplete(s classifyState) classifyState {
	v, ok := s.(stateFrameComplete)
	if !ok {
		return stateInternalStateError{}
	}
	if v.headers == nil {
		return stateInternalStateError{}
	}

	switch v.headers.PayloadType {
	case wire.PayloadRequest, wire.PayloadResponse:
		return stateValidFrame{
			mode: v.mode, headers: v.headers,
			hasLayerData: v.hasLayerData, layerData: v.layerData, payload: v.payload,
		}
	case wire.PayloadEvent:
		if v.mode == ModeRich {
			return stateValidFrame{
				mode: v.mode, headers: v.headers,
				hasLayerData: v.hasLayerData, layerData: v.layerData, payload: v.payload,
			}
		}
		return malformed(wire.ErrCodeNotSupported)
	default:
		return malformed(wire.ErrCodeNotSupported)
	}
}

func transValidFrame(s classifyState) classifyState {
	v, ok := s.(stateValidFrame)
	if !ok {
		return stateInternalStateError{}
	}
	if v.headers == nil {
		return stateInternalStateError{}
	}

	var d Disposition
	switch v.headers.PayloadType {
	case wire.PayloadRequest:
		d = DeliverRequestToService
	case wire.PayloadResponse:
		d = DeliverResponseToProxy
	case wire.PayloadEvent:
		d = DeliverEventToService
	default:
		return stateInternalStateError{}
	}

	var layerData []byte
	if v.hasLayerData {
		layerData = v.layerData
	}

	return stateClassifiedValidFrame{result: Result{
		Disposition: d,
		Headers:     v.headers,
		LayerData:   layerData,
		Payload:     v.payload,
	}}
}

func transExpectConfig(s classifyState) classifyState {
	v, ok := s.(stateExpectConfig)
	if !ok {
		return stateInternalStateError{}
	}
	if v.frame == nil {
		return stateInternalStateError{}
	}

	if len(v.frame.Framelets) != 1 {
		return malformed(wire.ErrCodeMalformedData)
	}

	if _, err := wire.DecodeConfigRecord(v.frame.Framelets[0].Contents); err != nil {
		return malformed(wire.ErrCodeMalformedData)
	}

	return stateClassifiedValidFrame{result: Result{Disposition: ProcessConfig}}
}

func transExpectProtocolError(s classifyState) classifyState {
	v, ok := s.(stateExpectProtocolError)
	if !ok {
		return stateInternalStateError{}
	}
	if v.frame == nil {
		return stateInternalStateError{}
	}

	if len(v.frame.Framelets) != 1 {
		return stateErrorInErrorFrame{}
	}

	pe, err := wire.DecodeProtocolError(v.frame.Framelets[0].Contents)
	if err != nil {
		return stateErrorInErrorFrame{}
	}

	code := pe.Code
	return stateClassifiedValidFrame{result: Result{
		Disposition: HandleProtocolError,
		Err:         fmt.Errorf("peer reported protocol error: %s", code),
		ErrorCode:   &code,
	}}
}
