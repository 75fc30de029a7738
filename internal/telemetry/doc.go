// Package telemetry — логирование, метрики и трассировка Pipeworks.
//
// Логи пишутся через slog (JSON или text, уровень из конфигурации);
// логгер с полями run_id/request_id передаётся через context.
// Метрики регистрируются через promauto в глобальном реестре Prometheus
// и отдаются каждым процессом на /metrics. SetupTracing ставит
// глобальный провайдер OpenTelemetry SDK с экспортёром stdout или
// OTLP/HTTP; спаны run и шагов исполнителя уходят в него.
package telemetry
