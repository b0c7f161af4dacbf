package network

import (
	"time"

	"github.com/google/uuid"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/protocol"
)

const (
	exchangeData          = "lurker.data"
	exchangeRoster        = "lurker.roster"
	routingKeyUnitJoined  = "unit.joined"
	defaultExpirationTime = "60000"
)

type Publisher interface {
	PublishReadings(source entities.UnitIdentity, readings []entities.SensorReading) error
	PublishUnitJoined(unit entities.UnitIdentity, assigned uint8, pipe entities.PipeAddress) error
}

type msgPublisher struct {
	amqp  Messaging
	newID func() string
	now   func() time.Time
}

func NewMsgPublisher(amqp Messaging) Publisher {
	return &msgPublisher{amqp: amqp, newID: uuid.NewString, now: time.Now}
}

func (mp *msgPublisher) options() *MessageOptions {
	return &MessageOptions{
		CorrelationID: mp.newID(),
		Expiration:    defaultExpirationTime,
	}
}

func (mp *msgPublisher) PublishReadings(source entities.UnitIdentity, readings []entities.SensorReading) error {
	if len(readings) == 0 {
		return nil
	}
	message := ReadingsSent{
		ID:       source.String(),
		Class:    source.Class,
		Unit:     readings[0].Unit,
		Readings: make([]Reading, 0, len(readings)),
	}
	for _, r := range readings {
		message.Readings = append(message.Readings, Reading{
			Sensor:    r.Sensor.String(),
			Value:     r.Value,
			Scaled:    protocol.IntToFloat(r.Value, r.DecimalShift),
			Timestamp: r.Timestamp,
		})
	}
	return mp.amqp.PublishPersistentMessage(exchangeData, exchangeTypeFanout, "", message, mp.options())
}

func (mp *msgPublisher) PublishUnitJoined(unit entities.UnitIdentity, assigned uint8, pipe entities.PipeAddress) error {
	message := UnitJoined{
		ID:        unit.String(),
		Class:     unit.Class,
		Requested: unit.ID,
		Assigned:  assigned,
		Pipe:      pipe.String(),
		Timestamp: mp.now().UTC(),
	}
	return mp.amqp.PublishPersistentMessage(exchangeRoster, exchangeTypeDirect, routingKeyUnitJoined, message, mp.options())
}
