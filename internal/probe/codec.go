package probe

import (
	"OFSpectra/internal/model"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeSummary serializes a packet summary as a protobuf Struct. Absent
// headers are encoded as null values, mirroring the JSON form.
func EncodeSummary(s model.PacketSummary) ([]byte, error) {
	fields := map[string]interface{}{
		"timestamp":           s.Timestamp,
		"dpid":                s.DPID,
		"in_port":             s.InPort,
		"eth_src":             stringOrNil(s.EthSrc),
		"eth_dst":             stringOrNil(s.EthDst),
		"eth_type":            stringOrNil(s.EthType),
		"ip_src":              stringOrNil(s.IPSrc),
		"ip_dst":              stringOrNil(s.IPDst),
		"ip_proto":            nil,
		"src_port":            nil,
		"dst_port":            nil,
		"packet_len":          s.PacketLen,
		"protocol_identified": string(s.Protocol),
	}
	if s.IPProto != nil {
		fields["ip_proto"] = uint32(*s.IPProto)
	}
	if s.SrcPort != nil {
		fields["src_port"] = uint32(*s.SrcPort)
	}
	if s.DstPort != nil {
		fields["dst_port"] = uint32(*s.DstPort)
	}

	pb, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build summary struct")
	}
	return proto.Marshal(pb)
}

// DecodeSummary is the inverse of EncodeSummary.
func DecodeSummary(data []byte) (model.PacketSummary, error) {
	var pb structpb.Struct
	if err := proto.Unmarshal(data, &pb); err != nil {
		return model.PacketSummary{}, errors.Wrap(err, "failed to unmarshal summary")
	}
	f := pb.GetFields()

	s := model.PacketSummary{
		Timestamp: f["timestamp"].GetNumberValue(),
		DPID:      uint64(f["dpid"].GetNumberValue()),
		InPort:    uint32(f["in_port"].GetNumberValue()),
		EthSrc:    stringField(f, "eth_src"),
		EthDst:    stringField(f, "eth_dst"),
		EthType:   stringField(f, "eth_type"),
		IPSrc:     stringField(f, "ip_src"),
		IPDst:     stringField(f, "ip_dst"),
		PacketLen: int(f["packet_len"].GetNumberValue()),
		Protocol:  model.Tag(f["protocol_identified"].GetStringValue()),
	}
	if v, ok := numberField(f, "ip_proto"); ok {
		p := uint8(v)
		s.IPProto = &p
	}
	if v, ok := numberField(f, "src_port"); ok {
		p := uint16(v)
		s.SrcPort = &p
	}
	if v, ok := numberField(f, "dst_port"); ok {
		p := uint16(v)
		s.DstPort = &p
	}
	if !s.Protocol.Valid() {
		return s, errors.Errorf("unknown protocol tag '%s'", s.Protocol)
	}
	return s, nil
}

func stringOrNil(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func stringField(f map[string]*structpb.Value, key string) *string {
	v, ok := f[key].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil
	}
	s := v.StringValue
	return &s
}

func numberField(f map[string]*structpb.Value, key string) (float64, bool) {
	v, ok := f[key].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return v.NumberValue, true
}
