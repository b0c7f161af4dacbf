package protocol

import (
	"strconv"
	"time"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/pkg/errors"
)

// MessageType is the one-character code that opens every frame.
type MessageType byte

const (
	TypeJoinRequest  MessageType = 'j'
	TypeJoinConfirm  MessageType = 'J'
	TypeReset        MessageType = 'R'
	TypeDataRequest  MessageType = 'D'
	TypeDataResponse MessageType = 'd'
	TypeTemperature  MessageType = MessageType(entities.SensorTemperature)
	TypeHumidity     MessageType = MessageType(entities.SensorHumidity)
	TypeIlluminance  MessageType = MessageType(entities.SensorIlluminance)
	TypeSound        MessageType = MessageType(entities.SensorSound)
	TypeMotion       MessageType = MessageType(entities.SensorMotion)
	TypeBuzzerOn     MessageType = 'B'
	TypeBuzzerOff    MessageType = 'b'
	TypeLedOn        MessageType = 'L'
	TypeLedOff       MessageType = 'l'
)

const unlimited = -1

type fieldRule struct {
	min, max int
	pairs    bool
}

var fieldRules = map[MessageType]fieldRule{
	TypeJoinRequest:  {min: 2, max: 2},
	TypeJoinConfirm:  {min: 3, max: 3},
	TypeReset:        {min: 0, max: 1},
	TypeDataRequest:  {min: 1, max: 1},
	TypeDataResponse: {min: 1, max: unlimited, pairs: true},
	TypeTemperature:  {min: 2, max: 2},
	TypeHumidity:     {min: 2, max: 2},
	TypeIlluminance:  {min: 2, max: 2},
	TypeSound:        {min: 2, max: 2},
	TypeMotion:       {min: 2, max: 2},
	TypeBuzzerOn:     {min: 1, max: 1},
	TypeBuzzerOff:    {min: 1, max: 1},
	TypeLedOn:        {min: 2, max: 2},
	TypeLedOff:       {min: 2, max: 2},
}

func (t MessageType) Known() bool {
	_, ok := fieldRules[t]
	return ok
}

func (t MessageType) String() string {
	return string(rune(t))
}

// IsReading reports whether frames of this type carry a single sensor value.
func (t MessageType) IsReading() bool {
	switch t {
	case TypeTemperature, TypeHumidity, TypeIlluminance, TypeSound, TypeMotion:
		return true
	}
	return false
}

// Message is a decoded frame: a type code followed by ASCII fields.
type Message struct {
	Type   MessageType
	Fields []string
}

func (m Message) checkFieldCount() error {
	rule, ok := fieldRules[m.Type]
	if !ok {
		return errors.Wrapf(ErrUnknownType, "type %q", byte(m.Type))
	}
	n := len(m.Fields)
	if n < rule.min || (rule.max != unlimited && n > rule.max) {
		return errors.Wrapf(ErrFieldCount, "type %s has %d fields", m.Type, n)
	}
	if rule.pairs && (n-rule.min)%2 != 0 {
		return errors.Wrapf(ErrFieldCount, "type %s has an unpaired field", m.Type)
	}
	return nil
}

func NewJoinRequest(unit entities.UnitIdentity) Message {
	return Message{Type: TypeJoinRequest, Fields: []string{unit.Class, formatID(unit.ID)}}
}

func NewJoinConfirm(unit entities.UnitIdentity, assigned uint8) Message {
	return Message{Type: TypeJoinConfirm, Fields: []string{unit.Class, formatID(unit.ID), formatID(assigned)}}
}

// NewReset builds a reset for the whole network.
func NewReset() Message {
	return Message{Type: TypeReset}
}

func NewResetFor(id uint8) Message {
	return Message{Type: TypeReset, Fields: []string{formatID(id)}}
}

func NewDataRequest(id uint8) Message {
	return Message{Type: TypeDataRequest, Fields: []string{formatID(id)}}
}

func NewDataResponse(id uint8, readings []entities.SensorReading) Message {
	fields := make([]string, 0, 1+2*len(readings))
	fields = append(fields, formatID(id))
	for _, r := range readings {
		fields = append(fields, string(rune(r.Sensor)), strconv.FormatInt(r.Value, 10))
	}
	return Message{Type: TypeDataResponse, Fields: fields}
}

// NewReading builds a single-reading frame, used for notifications.
func NewReading(r entities.SensorReading) Message {
	return Message{Type: MessageType(r.Sensor), Fields: []string{formatID(r.Unit), strconv.FormatInt(r.Value, 10)}}
}

func NewBuzzer(id uint8, on bool) Message {
	t := TypeBuzzerOff
	if on {
		t = TypeBuzzerOn
	}
	return Message{Type: t, Fields: []string{formatID(id)}}
}

func NewLed(id uint8, led uint8, on bool) Message {
	t := TypeLedOff
	if on {
		t = TypeLedOn
	}
	return Message{Type: t, Fields: []string{formatID(id), formatID(led)}}
}

// UnitID returns the unit a message concerns. For join frames that is the
// requesting unit, for every other type the first field.
func (m Message) UnitID() (uint8, bool) {
	idx := 0
	switch m.Type {
	case TypeJoinRequest, TypeJoinConfirm:
		idx = 1
	}
	if len(m.Fields) <= idx {
		return 0, false
	}
	id, err := parseID(m.Fields[idx])
	return id, err == nil
}

// Identity returns the class and id carried by a join frame.
func (m Message) Identity() (entities.UnitIdentity, error) {
	if m.Type != TypeJoinRequest && m.Type != TypeJoinConfirm {
		return entities.UnitIdentity{}, errors.Wrapf(ErrUnknownType, "type %s carries no identity", m.Type)
	}
	if err := m.checkFieldCount(); err != nil {
		return entities.UnitIdentity{}, err
	}
	id, err := parseID(m.Fields[1])
	if err != nil {
		return entities.UnitIdentity{}, err
	}
	return entities.UnitIdentity{Class: m.Fields[0], ID: id}, nil
}

// AssignedID returns the id a join confirm hands out.
func (m Message) AssignedID() (uint8, error) {
	if m.Type != TypeJoinConfirm {
		return 0, errors.Wrapf(ErrUnknownType, "type %s is not a join confirm", m.Type)
	}
	if err := m.checkFieldCount(); err != nil {
		return 0, err
	}
	return parseID(m.Fields[2])
}

// LedNumber returns the LED a led command drives.
func (m Message) LedNumber() (uint8, error) {
	if m.Type != TypeLedOn && m.Type != TypeLedOff {
		return 0, errors.Wrapf(ErrUnknownType, "type %s is not a led command", m.Type)
	}
	if err := m.checkFieldCount(); err != nil {
		return 0, err
	}
	return parseID(m.Fields[1])
}

// Readings unpacks the values of a data response or single-reading frame.
// Values stay fixed-point; the receiver knows each sensor's decimal shift.
func (m Message) Readings(receivedAt time.Time) ([]entities.SensorReading, error) {
	if err := m.checkFieldCount(); err != nil {
		return nil, err
	}
	unit, err := parseID(m.Fields[0])
	if err != nil {
		return nil, err
	}
	if m.Type.IsReading() {
		value, err := parseValue(m.Fields[1])
		if err != nil {
			return nil, err
		}
		return []entities.SensorReading{{Unit: unit, Sensor: entities.SensorCode(m.Type), Value: value, Timestamp: receivedAt}}, nil
	}
	if m.Type != TypeDataResponse {
		return nil, errors.Wrapf(ErrUnknownType, "type %s carries no readings", m.Type)
	}
	readings := make([]entities.SensorReading, 0, (len(m.Fields)-1)/2)
	for i := 1; i+1 < len(m.Fields); i += 2 {
		code := m.Fields[i]
		if len(code) != 1 || !entities.SensorCode(code[0]).Valid() {
			return nil, errors.Wrapf(ErrInvalidField, "sensor code %q", code)
		}
		value, err := parseValue(m.Fields[i+1])
		if err != nil {
			return nil, err
		}
		readings = append(readings, entities.SensorReading{Unit: unit, Sensor: entities.SensorCode(code[0]), Value: value, Timestamp: receivedAt})
	}
	return readings, nil
}

func formatID(id uint8) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseID(field string) (uint8, error) {
	id, err := strconv.ParseUint(field, 10, 8)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidField, "unit id %q", field)
	}
	return uint8(id), nil
}

func parseValue(field string) (int64, error) {
	v, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidField, "value %q", field)
	}
	return v, nil
}

// Envelope pairs a message with the pipe it travels on.
type Envelope struct {
	Pipe    entities.PipeAddress
	Message Message
}
