package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeRuns Exchange = "pipeworks.runs"
	ExchangeDLQ  Exchange = "pipeworks.dlq"
)

// Queues — имена очередей.
const (
	QueueRunsExecute Queue = "runs.execute"
	QueueDLQRuns     Queue = "dlq.runs"
)

// Routing keys.
const (
	RoutingKeyExecute RoutingKey = "execute"
	RoutingKeyDLQRuns RoutingKey = "runs"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// topology — объявления exchanges, queues и bindings.
type topology struct {
	Exchanges []exchangeDecl
	Queues    []queueDecl
	Bindings  []bindingDecl
}

// defaultTopology возвращает топологию очереди задач.
//
// runs.execute отклонённые без requeue сообщения отправляет в dlq.runs.
func defaultTopology() topology {
	return topology{
		Exchanges: []exchangeDecl{
			{ExchangeRuns, "direct"},
			{ExchangeDLQ, "direct"},
		},
		Queues: []queueDecl{
			{QueueRunsExecute, amqp.Table{
				"x-dead-letter-exchange":    string(ExchangeDLQ),
				"x-dead-letter-routing-key": string(RoutingKeyDLQRuns),
			}},
			{QueueDLQRuns, nil},
		},
		Bindings: []bindingDecl{
			{QueueRunsExecute, RoutingKeyExecute, ExchangeRuns},
			{QueueDLQRuns, RoutingKeyDLQRuns, ExchangeDLQ},
		},
	}
}

// SetupTopology объявляет топологию. Операции идемпотентны.
func SetupTopology(ctx context.Context, conn *Connection) error {
	t := defaultTopology()
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		for _, ex := range t.Exchanges {
			err := ch.ExchangeDeclare(
				string(ex.name), // name
				ex.kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		// 2. Создаём queues
		for _, q := range t.Queues {
			_, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		// 3. Привязываем queues к exchanges
		for _, b := range t.Bindings {
			err := ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Pipeworks RabbitMQ Topology:

    pipeworks.runs (direct)
    └── runs.execute [routing: execute]
            Consumer: Worker
            DLQ: dlq.runs

    pipeworks.dlq (direct)
    └── dlq.runs [routing: runs]
            Manual processing
  `
}
