package uplink

import (
	"encoding/json"
	"fmt"
	"sync"

	bloomFilter "github.com/bits-and-blooms/bloom/v3"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/mesh"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/uplink/network"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const commandBacklog = 16

// Integration forwards the readings the coordinator receives to the broker,
// dropping repeats, and turns broker commands into entities.Command values.
type Integration struct {
	conf                entities.UplinkConfig
	amqp                network.Messaging
	publisher           network.Publisher
	subscriber          network.Subscriber
	filters             map[uint8]*bloomFilter.BloomFilter
	filtersMutex        sync.Mutex
	isReadingDuplicated func(entities.SensorReading) bool
	inbound             chan network.InMsg
	commands            chan entities.Command
	log                 *logrus.Entry
}

func NewIntegration(conf entities.UplinkConfig, amqp network.Messaging, log *logrus.Entry) *Integration {
	return newIntegration(conf, amqp, network.NewMsgPublisher(amqp), network.NewMsgSubscriber(amqp), log)
}

func newIntegration(conf entities.UplinkConfig, amqp network.Messaging, publisher network.Publisher, subscriber network.Subscriber, log *logrus.Entry) *Integration {
	i := &Integration{
		conf:       conf,
		amqp:       amqp,
		publisher:  publisher,
		subscriber: subscriber,
		filters:    make(map[uint8]*bloomFilter.BloomFilter),
		inbound:    make(chan network.InMsg, commandBacklog),
		commands:   make(chan entities.Command, commandBacklog),
		log:        log,
	}
	duplicationFilterFunctionMapping := map[bool]func(entities.SensorReading) bool{
		false: func(entities.SensorReading) bool { return false },
		true:  i.checkAndRecord,
	}
	i.isReadingDuplicated = duplicationFilterFunctionMapping[conf.DuplicationFilter]
	return i
}

// Start connects to the broker and subscribes to remote commands.
func (i *Integration) Start() error {
	if err := i.amqp.Start(); err != nil {
		return err
	}
	if err := i.subscriber.SubscribeToCommands(i.inbound); err != nil {
		return errors.Wrap(err, "subscribe to commands")
	}
	go i.decodeCommands()
	i.log.Infoln("uplink connected")
	return nil
}

func (i *Integration) Close() error {
	return i.amqp.Stop()
}

// Commands yields remote commands for the main loop to poll without
// blocking.
func (i *Integration) Commands() <-chan entities.Command {
	return i.commands
}

func (i *Integration) decodeCommands() {
	for msg := range i.inbound {
		var cmd entities.Command
		if err := json.Unmarshal(msg.Body, &cmd); err != nil {
			i.log.WithError(err).Warnln("invalid command message")
			continue
		}
		select {
		case i.commands <- cmd:
		default:
			i.log.Warnf("command backlog full, %s for unit %d dropped", cmd.Action, cmd.Unit)
		}
	}
}

// Deliver publishes the readings not seen before. Publishing failures are
// logged and never returned, so they cannot stall the radio loop.
func (i *Integration) Deliver(source entities.UnitIdentity, readings []entities.SensorReading) error {
	var fresh []entities.SensorReading
	for _, r := range readings {
		if i.isReadingDuplicated(r) {
			i.log.Debugf("duplicated %s reading from unit %d dropped", r.Sensor, r.Unit)
			continue
		}
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		return nil
	}
	if err := i.publisher.PublishReadings(source, fresh); err != nil {
		i.log.WithError(err).Warnf("publish readings of %s", source)
	}
	return nil
}

// UnitJoined announces a roster change and starts a fresh filter for the
// unit.
func (i *Integration) UnitJoined(member mesh.Member) {
	i.filtersMutex.Lock()
	i.filters[member.Assigned] = i.newFilter()
	i.filtersMutex.Unlock()
	if err := i.publisher.PublishUnitJoined(member.Identity, member.Assigned, member.Pipe); err != nil {
		i.log.WithError(err).Warnf("publish join of %s", member.Identity)
	}
}

func (i *Integration) newFilter() *bloomFilter.BloomFilter {
	return bloomFilter.NewWithEstimates(i.conf.FilterCapacity, i.conf.DuplicationProbability)
}

func (i *Integration) readingKey(r entities.SensorReading) []byte {
	window := r.Timestamp.UnixNano()
	if i.conf.DedupWindow > 0 {
		window = r.Timestamp.Truncate(i.conf.DedupWindow).UnixNano()
	}
	return []byte(fmt.Sprintf("%d_%c_%d_%d", r.Unit, rune(r.Sensor), r.Value, window))
}

// checkAndRecord reports whether the reading was already seen and records
// it otherwise.
func (i *Integration) checkAndRecord(r entities.SensorReading) bool {
	i.filtersMutex.Lock()
	defer i.filtersMutex.Unlock()
	filter, ok := i.filters[r.Unit]
	if !ok {
		filter = i.newFilter()
		i.filters[r.Unit] = filter
	}
	key := i.readingKey(r)
	if filter.Test(key) {
		return true
	}
	i.resetDuplicationFilter(r.Unit, filter)
	filter.Add(key)
	return false
}

func (i *Integration) resetDuplicationFilter(unit uint8, filter *bloomFilter.BloomFilter) {
	approximatedFilterSize := filter.ApproximatedSize()
	currentPercentageFilterUsage := (float32(approximatedFilterSize) / float32(i.conf.FilterCapacity)) * 100
	if currentPercentageFilterUsage >= i.conf.MaxFilterUsage {
		i.log.Debugf("duplication filter of unit %d reset at %.0f%% usage", unit, currentPercentageFilterUsage)
		filter.ClearAll()
	}
}
