// Package worker выполняет pipeline runs.
//
// # Обзор
//
// Worker — stateless компонент системы Pipeworks, который:
//
//   - Получает задачи "выполнить run" из очереди (queue.Queue)
//   - Захватывает run переходом NOT_STARTED → RUNNING
//   - Проводит run через шаги Executor
//   - Сообщает итог переходом в COMPLETED или FAILED
//
// Workers масштабируются горизонтально — несколько экземпляров
// потребляют из одной очереди runs.execute.
//
// # Worker
//
//	w := worker.New(worker.Config{
//	    Queue:       jobQueue,
//	    Executor:    executor,
//	    Concurrency: 2,
//	    Logger:      logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Executor
//
// Шаги выполнения, каждый — отдельная единица, ошибка которой прерывает
// остальные и ведёт в путь отказа:
//
//  1. RUNNING
//  2. docker pull образа
//  3. git clone ветки в рабочий каталог
//  4. Проверка entry-скрипта
//  5. Каталоги input/ и output/
//  6. Скачивание входов в input/<filename>
//  7. docker run с input/ и output/, OPENFIDO_INPUT/OPENFIDO_OUTPUT
//  8. Загрузка файлов output/ как артефактов
//  9. COMPLETED
//
// Вывод каждого процесса дописывается в консоль run на границе шага.
// При ошибке текст ошибки дописывается в stderr, и run переходит в FAILED.
// Ошибка самого отчёта об отказе логируется и не возвращается в очередь.
//
// # Подтверждение задач
//
//   - Run выполнен или отказал — ack
//   - Run уже захвачен или завершён (повторная доставка) — ack
//   - Инфраструктурная ошибка до захвата — nack с requeue,
//     повторная доставка с той же ошибкой уходит в DLQ
package worker
