package repo

import "errors"

// Ошибки хранилища. Postgres и Memory возвращают одни и те же значения,
// чтобы сервисы не зависели от реализации.
var (
	// ErrNotFound — строка не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — нарушение уникальности (id, номер run, ребро).
	ErrAlreadyExists = errors.New("already exists")
)
