package network

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	exchangeTypeDirect = "direct"
	exchangeTypeFanout = "fanout"

	durable          = true
	deleteWhenUnused = false
	exclusive        = false
	noWait           = false
	internal         = false
	noAck            = true
	noLocal          = false
	consumerTag      = ""
)

// Messaging is the broker surface the publisher and subscriber rely on.
type Messaging interface {
	Start() error
	Stop() error
	OnMessage(msgChan chan InMsg, queueName, exchangeName, exchangeType, key string) error
	PublishPersistentMessage(exchange, exchangeType, key string, data interface{}, options *MessageOptions) error
}

type InMsg struct {
	Exchange      string
	RoutingKey    string
	CorrelationID string
	Body          []byte
}

// MessageOptions represents the message publishing options
type MessageOptions struct {
	CorrelationID string
	Expiration    string
}

// AMQPHandler keeps one broker connection and reconnects when it drops.
type AMQPHandler struct {
	mu                sync.Mutex
	conn              connection
	declaredExchanges map[string]struct{}
	newBackOff        func() backoff.BackOff
	log               *logrus.Entry
}

func NewAMQPHandler(conn connection, log *logrus.Entry) *AMQPHandler {
	return &AMQPHandler{
		conn:              conn,
		declaredExchanges: make(map[string]struct{}),
		newBackOff:        startBackOff,
		log:               log,
	}
}

func startBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	return b
}

// reconnectionBackOff retries forever with jittered waits of 30s up to 5m.
func reconnectionBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 30 * time.Second
	b.MaxInterval = 5 * time.Minute
	b.Multiplier = 1.7
	b.MaxElapsedTime = 0 // never stop
	return b
}

func (a *AMQPHandler) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := backoff.Retry(a.connect, a.newBackOff()); err != nil {
		return errors.Wrap(err, "connect to broker")
	}
	go a.notifyWhenClosed()
	return nil
}

func (a *AMQPHandler) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn.close()
}

func (a *AMQPHandler) connect() error {
	if err := a.conn.connect(); err != nil {
		a.log.WithError(err).Warnln("broker unreachable")
		return err
	}
	return a.conn.createChannel()
}

func (a *AMQPHandler) notifyWhenClosed() {
	a.mu.Lock()
	closed := a.conn.notifyClose(make(chan *amqp.Error, 1))
	a.mu.Unlock()

	errReason, ok := <-closed
	if !ok || errReason == nil {
		return
	}
	a.log.WithError(errReason).Warnln("broker connection lost")
	retry := reconnectionBackOff()
	err := backoff.Retry(func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		// exchanges must be declared again on the new channel
		a.declaredExchanges = make(map[string]struct{})
		return a.connect()
	}, retry)
	if err != nil {
		return
	}
	a.log.Infoln("reconnected to broker")
	go a.notifyWhenClosed()
}

func (a *AMQPHandler) OnMessage(msgChan chan InMsg, queueName, exchangeName, exchangeType, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.declareExchange(exchangeName, exchangeType); err != nil {
		return err
	}
	if err := a.conn.queueDeclare(queueName); err != nil {
		return errors.Wrapf(err, "declare queue %s", queueName)
	}
	if err := a.conn.queueBind(queueName, key, exchangeName); err != nil {
		return errors.Wrapf(err, "bind queue %s to %s", queueName, exchangeName)
	}
	deliveries, err := a.conn.consume(queueName)
	if err != nil {
		return errors.Wrapf(err, "consume %s", queueName)
	}
	go convertDeliveryToInMsg(deliveries, msgChan)
	return nil
}

func (a *AMQPHandler) PublishPersistentMessage(exchange, exchangeType, key string, data interface{}, options *MessageOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.declareExchange(exchange, exchangeType); err != nil {
		return err
	}
	if err := a.conn.publish(exchange, key, data, options); err != nil {
		return errors.Wrapf(err, "publish to %s", exchange)
	}
	return nil
}

// declareExchange avoids redeclaring an exchange already declared on this
// channel.
func (a *AMQPHandler) declareExchange(name, exchangeType string) error {
	if _, ok := a.declaredExchanges[name]; ok {
		return nil
	}
	if err := a.conn.exchangeDeclare(name, exchangeType); err != nil {
		return errors.Wrapf(err, "declare exchange %s", name)
	}
	a.declaredExchanges[name] = struct{}{}
	return nil
}

func convertDeliveryToInMsg(deliveries <-chan amqp.Delivery, outMsg chan InMsg) {
	for d := range deliveries {
		outMsg <- InMsg{d.Exchange, d.RoutingKey, d.CorrelationId, d.Body}
	}
}
