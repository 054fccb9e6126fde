// Package wire declares the messages that cross component boundaries and
// their protobuf-shaped encoding. Rather than a .proto/protoc step, each
// message is a plain Go struct carrying `protobuf` struct tags and the
// three-method boilerplate (Reset/String/ProtoMessage) that satisfies
// gogo/protobuf's Message interface; gogo/protobuf's reflection-based
// Marshal/Unmarshal (the same mechanism golang/protobuf APIv1 used before
// generated Marshal/Unmarshal methods existed) does the rest. This keeps the
// wire format genuinely protobuf without requiring the toolchain to build it.
package wire

import (
	"fmt"

	"github.com/gogo/protobuf/proto"
)

// Message is the marker interface every wire payload implements.
type Message = proto.Message

// ScanParamsMsg is the wire form of spatial.ScanParameters2D.
type ScanParamsMsg struct {
	TopLeftX  float64 `protobuf:"fixed64,1,opt,name=top_left_x,proto3" json:"top_left_x,omitempty"`
	TopLeftY  float64 `protobuf:"fixed64,2,opt,name=top_left_y,proto3" json:"top_left_y,omitempty"`
	LengthUnit string `protobuf:"bytes,3,opt,name=length_unit,proto3" json:"length_unit,omitempty"`
	SizeWidth  float64 `protobuf:"fixed64,4,opt,name=size_width,proto3" json:"size_width,omitempty"`
	SizeHeight float64 `protobuf:"fixed64,5,opt,name=size_height,proto3" json:"size_height,omitempty"`
	Angle      float64 `protobuf:"fixed64,6,opt,name=angle,proto3" json:"angle,omitempty"`
	AngleUnit  string  `protobuf:"bytes,7,opt,name=angle_unit,proto3" json:"angle_unit,omitempty"`
	NX         int32   `protobuf:"varint,8,opt,name=nx,proto3" json:"nx,omitempty"`
	NY         int32   `protobuf:"varint,9,opt,name=ny,proto3" json:"ny,omitempty"`
	DataUnit   string  `protobuf:"bytes,10,opt,name=data_unit,proto3" json:"data_unit,omitempty"`
}

func (m *ScanParamsMsg) Reset()         { *m = ScanParamsMsg{} }
func (m *ScanParamsMsg) String() string { return fmt.Sprintf("%+v", *m) }
func (*ScanParamsMsg) ProtoMessage()    {}

// ProbePositionMsg is the wire form of spatial.ProbePosition.
type ProbePositionMsg struct {
	X    float64 `protobuf:"fixed64,1,opt,name=x,proto3" json:"x,omitempty"`
	Y    float64 `protobuf:"fixed64,2,opt,name=y,proto3" json:"y,omitempty"`
	Unit string  `protobuf:"bytes,3,opt,name=unit,proto3" json:"unit,omitempty"`
}

func (m *ProbePositionMsg) Reset()         { *m = ProbePositionMsg{} }
func (m *ProbePositionMsg) String() string { return fmt.Sprintf("%+v", *m) }
func (*ProbePositionMsg) ProtoMessage()    {}

// ZCtrlParamsMsg is the wire form of spatial.ZCtrlParameters.
type ZCtrlParamsMsg struct {
	FeedbackOn   bool    `protobuf:"varint,1,opt,name=feedback_on,proto3" json:"feedback_on,omitempty"`
	PGain        float64 `protobuf:"fixed64,2,opt,name=p_gain,proto3" json:"p_gain,omitempty"`
	IGain        float64 `protobuf:"fixed64,3,opt,name=i_gain,proto3" json:"i_gain,omitempty"`
	SetPoint     float64 `protobuf:"fixed64,4,opt,name=set_point,proto3" json:"set_point,omitempty"`
	SetPointUnit string  `protobuf:"bytes,5,opt,name=set_point_unit,proto3" json:"set_point_unit,omitempty"`
}

func (m *ZCtrlParamsMsg) Reset()         { *m = ZCtrlParamsMsg{} }
func (m *ZCtrlParamsMsg) String() string { return fmt.Sprintf("%+v", *m) }
func (*ZCtrlParamsMsg) ProtoMessage()    {}

// Scan2DMsg is the wire form of spatial.Scan2D.
type Scan2DMsg struct {
	TimestampUnixNanos int64          `protobuf:"varint,1,opt,name=timestamp_unix_nanos,proto3" json:"timestamp_unix_nanos,omitempty"`
	Filename           string         `protobuf:"bytes,2,opt,name=filename,proto3" json:"filename,omitempty"`
	Channel            string         `protobuf:"bytes,3,opt,name=channel,proto3" json:"channel,omitempty"`
	Roi                *ScanParamsMsg `protobuf:"bytes,4,opt,name=roi,proto3" json:"roi,omitempty"`
	Values             []float64      `protobuf:"fixed64,5,rep,packed,name=values,proto3" json:"values,omitempty"`
}

func (m *Scan2DMsg) Reset()         { *m = Scan2DMsg{} }
func (m *Scan2DMsg) String() string { return fmt.Sprintf("%+v", *m) }
func (*Scan2DMsg) ProtoMessage()    {}

// Spec1DMsg is the wire form of spatial.Spec1D.
type Spec1DMsg struct {
	TimestampUnixNanos int64             `protobuf:"varint,1,opt,name=timestamp_unix_nanos,proto3" json:"timestamp_unix_nanos,omitempty"`
	Filename           string            `protobuf:"bytes,2,opt,name=filename,proto3" json:"filename,omitempty"`
	Type               string            `protobuf:"bytes,3,opt,name=type,proto3" json:"type,omitempty"`
	ProbePos           *ProbePositionMsg `protobuf:"bytes,4,opt,name=probe_pos,proto3" json:"probe_pos,omitempty"`
	NumVariables       int32             `protobuf:"varint,5,opt,name=num_variables,proto3" json:"num_variables,omitempty"`
	DataPerVariable    int32             `protobuf:"varint,6,opt,name=data_per_variable,proto3" json:"data_per_variable,omitempty"`
	Names              []string          `protobuf:"bytes,7,rep,name=names,proto3" json:"names,omitempty"`
	Units              []string          `protobuf:"bytes,8,rep,name=units,proto3" json:"units,omitempty"`
	Values             []float64         `protobuf:"fixed64,9,rep,packed,name=values,proto3" json:"values,omitempty"`
}

func (m *Spec1DMsg) Reset()         { *m = Spec1DMsg{} }
func (m *Spec1DMsg) String() string { return fmt.Sprintf("%+v", *m) }
func (*Spec1DMsg) ProtoMessage()    {}

// ScopeStateMsg wraps a single ScopeState value so it can be published as
// its own topic (spec §4.8.3: scope_state is always emitted last).
type ScopeStateMsg struct {
	State int32 `protobuf:"varint,1,opt,name=state,proto3" json:"state,omitempty"`
}

func (m *ScopeStateMsg) Reset()         { *m = ScopeStateMsg{} }
func (m *ScopeStateMsg) String() string { return fmt.Sprintf("%+v", *m) }
func (*ScopeStateMsg) ProtoMessage()    {}

// ParameterMsg is the read/write envelope used by the Parameter Handler:
// ValueText absent means "read", present means "write" (spec §3).
type ParameterMsg struct {
	Name      string  `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	ValueText *string `protobuf:"bytes,2,opt,name=value_text,proto3" json:"value_text,omitempty"`
	ValueUnit *string `protobuf:"bytes,3,opt,name=value_unit,proto3" json:"value_unit,omitempty"`
}

func (m *ParameterMsg) Reset()         { *m = ParameterMsg{} }
func (m *ParameterMsg) String() string { return fmt.Sprintf("%+v", *m) }
func (*ParameterMsg) ProtoMessage()    {}

// IsRead reports whether this is a get (no value present).
func (m *ParameterMsg) IsRead() bool { return m.ValueText == nil }

// ActionMsg requests execution of a portable action.
type ActionMsg struct {
	Name string `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
}

func (m *ActionMsg) Reset()         { *m = ActionMsg{} }
func (m *ActionMsg) String() string { return fmt.Sprintf("%+v", *m) }
func (*ActionMsg) ProtoMessage()    {}

// ControlStateMsg is the wire form of the Router-computed ControlState.
type ControlStateMsg struct {
	ControlMode       int32    `protobuf:"varint,1,opt,name=control_mode,proto3" json:"control_mode,omitempty"`
	ClientInControlID string   `protobuf:"bytes,2,opt,name=client_in_control_id,proto3" json:"client_in_control_id,omitempty"`
	Problems          []string `protobuf:"bytes,3,rep,name=problems,proto3" json:"problems,omitempty"`
}

func (m *ControlStateMsg) Reset()         { *m = ControlStateMsg{} }
func (m *ControlStateMsg) String() string { return fmt.Sprintf("%+v", *m) }
func (*ControlStateMsg) ProtoMessage()    {}

// CorrectionInfoMsg is the wire form of the Drift Scheduler's cumulative
// tip-to-sample offset estimate.
type CorrectionInfoMsg struct {
	TimestampUnixNanos int64   `protobuf:"varint,1,opt,name=timestamp_unix_nanos,proto3" json:"timestamp_unix_nanos,omitempty"`
	VX                 float64 `protobuf:"fixed64,2,opt,name=vx,proto3" json:"vx,omitempty"`
	VY                 float64 `protobuf:"fixed64,3,opt,name=vy,proto3" json:"vy,omitempty"`
	RX                 float64 `protobuf:"fixed64,4,opt,name=rx,proto3" json:"rx,omitempty"`
	RY                 float64 `protobuf:"fixed64,5,opt,name=ry,proto3" json:"ry,omitempty"`
	LengthUnit         string  `protobuf:"bytes,6,opt,name=length_unit,proto3" json:"length_unit,omitempty"`
}

func (m *CorrectionInfoMsg) Reset()         { *m = CorrectionInfoMsg{} }
func (m *CorrectionInfoMsg) String() string { return fmt.Sprintf("%+v", *m) }
func (*CorrectionInfoMsg) ProtoMessage()    {}

// DriftSnapshotMsg is the wire form of a single drift estimate between two
// scans.
type DriftSnapshotMsg struct {
	T1UnixNanos int64   `protobuf:"varint,1,opt,name=t1_unix_nanos,proto3" json:"t1_unix_nanos,omitempty"`
	T2UnixNanos int64   `protobuf:"varint,2,opt,name=t2_unix_nanos,proto3" json:"t2_unix_nanos,omitempty"`
	VX          float64 `protobuf:"fixed64,3,opt,name=vx,proto3" json:"vx,omitempty"`
	VY          float64 `protobuf:"fixed64,4,opt,name=vy,proto3" json:"vy,omitempty"`
	LengthUnit  string  `protobuf:"bytes,5,opt,name=length_unit,proto3" json:"length_unit,omitempty"`
}

func (m *DriftSnapshotMsg) Reset()         { *m = DriftSnapshotMsg{} }
func (m *DriftSnapshotMsg) String() string { return fmt.Sprintf("%+v", *m) }
func (*DriftSnapshotMsg) ProtoMessage()    {}

// Marshal encodes a Message using gogo/protobuf's reflection-based encoder.
func Marshal(m Message) ([]byte, error) {
	b, err := proto.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %T: %w", m, err)
	}
	return b, nil
}

// Unmarshal decodes buf into m using gogo/protobuf's reflection-based decoder.
func Unmarshal(buf []byte, m Message) error {
	if err := proto.Unmarshal(buf, m); err != nil {
		return fmt.Errorf("wire: unmarshal %T: %w", m, err)
	}
	return nil
}
