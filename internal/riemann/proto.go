// Package riemann encodes events in the Riemann protocol buffer format and
// frames them for the TCP transport.
//
// Only the fields tagpulse sends are encoded; unknown fields in responses
// are skipped.
package riemann

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers from riemann's proto.proto.
const (
	msgOK     protowire.Number = 2
	msgError  protowire.Number = 3
	msgEvents protowire.Number = 6

	eventTime        protowire.Number = 1
	eventState       protowire.Number = 2
	eventService     protowire.Number = 3
	eventHost        protowire.Number = 4
	eventDescription protowire.Number = 5
	eventTags        protowire.Number = 7
	eventTTL         protowire.Number = 8
	eventAttributes  protowire.Number = 9
	eventTimeMicros  protowire.Number = 10
	eventMetricSint  protowire.Number = 13
	eventMetricD     protowire.Number = 14
	eventMetricF     protowire.Number = 15

	attributeKey   protowire.Number = 1
	attributeValue protowire.Number = 2
)

// Event is a Riemann event.
type Event struct {
	Time        int64 // unix seconds
	TimeMicros  int64 // unix microseconds; preferred by riemann when set
	State       string
	Service     string
	Host        string
	Description string
	Tags        []string
	TTL         float32 // seconds
	Attributes  map[string]string
	Metric      float64
}

// Msg is the envelope exchanged with a Riemann server.
type Msg struct {
	OK     bool
	Error  string
	Events []Event
}

// Marshal encodes m in protobuf wire format.
func Marshal(m Msg) []byte {
	var b []byte
	if m.OK {
		b = protowire.AppendTag(b, msgOK, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if m.Error != "" {
		b = protowire.AppendTag(b, msgError, protowire.BytesType)
		b = protowire.AppendString(b, m.Error)
	}
	for _, e := range m.Events {
		b = protowire.AppendTag(b, msgEvents, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalEvent(e))
	}
	return b
}

func marshalEvent(e Event) []byte {
	var b []byte
	if e.Time != 0 {
		b = protowire.AppendTag(b, eventTime, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Time))
	}
	b = appendString(b, eventState, e.State)
	b = appendString(b, eventService, e.Service)
	b = appendString(b, eventHost, e.Host)
	b = appendString(b, eventDescription, e.Description)
	for _, tag := range e.Tags {
		b = protowire.AppendTag(b, eventTags, protowire.BytesType)
		b = protowire.AppendString(b, tag)
	}
	if e.TTL != 0 {
		b = protowire.AppendTag(b, eventTTL, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(e.TTL))
	}
	for k, v := range e.Attributes {
		var attr []byte
		attr = appendString(attr, attributeKey, k)
		attr = appendString(attr, attributeValue, v)
		b = protowire.AppendTag(b, eventAttributes, protowire.BytesType)
		b = protowire.AppendBytes(b, attr)
	}
	if e.TimeMicros != 0 {
		b = protowire.AppendTag(b, eventTimeMicros, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.TimeMicros))
	}
	// Integral metrics go out as sint64 so riemann keeps them exact;
	// everything else as double, with the float copy older servers read.
	if e.Metric == math.Trunc(e.Metric) && math.Abs(e.Metric) < 1<<53 {
		b = protowire.AppendTag(b, eventMetricSint, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(e.Metric)))
	}
	b = protowire.AppendTag(b, eventMetricD, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(e.Metric))
	b = protowire.AppendTag(b, eventMetricF, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(float32(e.Metric)))
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// Unmarshal decodes a Msg from protobuf wire format.
func Unmarshal(b []byte) (Msg, error) {
	var m Msg
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Msg{}, fmt.Errorf("msg tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == msgOK && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Msg{}, fmt.Errorf("msg ok: %w", protowire.ParseError(n))
			}
			m.OK = v != 0
			b = b[n:]
		case num == msgError && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Msg{}, fmt.Errorf("msg error: %w", protowire.ParseError(n))
			}
			m.Error = v
			b = b[n:]
		case num == msgEvents && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Msg{}, fmt.Errorf("msg event: %w", protowire.ParseError(n))
			}
			e, err := unmarshalEvent(v)
			if err != nil {
				return Msg{}, err
			}
			m.Events = append(m.Events, e)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Msg{}, fmt.Errorf("msg field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return m, nil
}

func unmarshalEvent(b []byte) (Event, error) {
	var e Event
	var haveD bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Event{}, fmt.Errorf("event tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && (num == eventState || num == eventService ||
			num == eventHost || num == eventDescription || num == eventTags || num == eventAttributes):
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Event{}, fmt.Errorf("event field %d: %w", num, protowire.ParseError(n))
			}
			switch num {
			case eventState:
				e.State = string(v)
			case eventService:
				e.Service = string(v)
			case eventHost:
				e.Host = string(v)
			case eventDescription:
				e.Description = string(v)
			case eventTags:
				e.Tags = append(e.Tags, string(v))
			case eventAttributes:
				k, val, err := unmarshalAttribute(v)
				if err != nil {
					return Event{}, err
				}
				if e.Attributes == nil {
					e.Attributes = make(map[string]string)
				}
				e.Attributes[k] = val
			}
			b = b[n:]
		case typ == protowire.VarintType && (num == eventTime || num == eventTimeMicros || num == eventMetricSint):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Event{}, fmt.Errorf("event field %d: %w", num, protowire.ParseError(n))
			}
			switch num {
			case eventTime:
				e.Time = int64(v)
			case eventTimeMicros:
				e.TimeMicros = int64(v)
			case eventMetricSint:
				if !haveD {
					e.Metric = float64(protowire.DecodeZigZag(v))
				}
			}
			b = b[n:]
		case typ == protowire.Fixed32Type && (num == eventTTL || num == eventMetricF):
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return Event{}, fmt.Errorf("event field %d: %w", num, protowire.ParseError(n))
			}
			if num == eventTTL {
				e.TTL = math.Float32frombits(v)
			} else if !haveD && e.Metric == 0 {
				e.Metric = float64(math.Float32frombits(v))
			}
			b = b[n:]
		case typ == protowire.Fixed64Type && num == eventMetricD:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return Event{}, fmt.Errorf("event metric_d: %w", protowire.ParseError(n))
			}
			e.Metric = math.Float64frombits(v)
			haveD = true
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Event{}, fmt.Errorf("event field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return e, nil
}

func unmarshalAttribute(b []byte) (string, string, error) {
	var key, value string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", "", fmt.Errorf("attribute tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.BytesType || (num != attributeKey && num != attributeValue) {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", "", fmt.Errorf("attribute field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeString(b)
		if n < 0 {
			return "", "", fmt.Errorf("attribute field %d: %w", num, protowire.ParseError(n))
		}
		if num == attributeKey {
			key = v
		} else {
			value = v
		}
		b = b[n:]
	}
	return key, value, nil
}
