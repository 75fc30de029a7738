// Package runtime запускает внешние процессы, нужные исполнителю run:
// docker (pull/run) и git (shallow clone).
//
// Ненулевой код выхода процесса — не ошибка Go: он возвращается в Result,
// и решение принимает вызывающий. Ошибка возвращается, только если процесс
// не удалось запустить.
package runtime
