package network

const (
	queueName          = "lurker-commands"
	exchangeCommands   = "lurker.commands"
	BindingKeyCommands = "unit.command"
)

type Subscriber interface {
	SubscribeToCommands(msgChan chan InMsg) error
}

type msgSubscriber struct {
	amqp Messaging
}

func NewMsgSubscriber(amqp Messaging) Subscriber {
	return &msgSubscriber{amqp}
}

func (ms *msgSubscriber) SubscribeToCommands(msgChan chan InMsg) error {
	return ms.amqp.OnMessage(msgChan, queueName, exchangeCommands, exchangeTypeDirect, BindingKeyCommands)
}
