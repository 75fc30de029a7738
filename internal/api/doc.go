// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (catalog, orchestrator, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - pipeline_handler.go — обработчики для /pipelines
//   - run_handler.go      — обработчики для /runs (включая контракт воркера)
//   - workflow_handler.go — обработчики для /workflows, /nodes, /edges, /workflow-runs
//
// API предоставляет REST endpoints для управления pipelines, workflows и runs.
package api
