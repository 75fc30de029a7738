// Package mq предоставляет RabbitMQ-реализацию очереди задач.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — получение сообщений с ручным подтверждением
//   - jobqueue.go   — queue.Queue поверх publisher и consumer
//
// Типы сообщений:
//   - run.execute — run готов к выполнению (NOT_STARTED)
//
// Exchanges:
//   - pipeworks.runs — задачи на выполнение runs
//   - pipeworks.dlq  — dead letter queue
package mq
