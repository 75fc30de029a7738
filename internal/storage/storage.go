// Package storage — объектное хранилище артефактов.
//
// Ключи артефактов строятся domain.ArtifactKey. Ссылки на скачивание
// не хранятся: их выдаёт PresignedURL с ограниченным сроком жизни.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound — объекта с таким ключом нет.
var ErrNotFound = errors.New("object not found")

// Store — объектное хранилище.
type Store interface {
	// Put сохраняет size байт из r под ключом key.
	// size = -1, если длина неизвестна.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get открывает объект для чтения; вызывающий закрывает reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// PresignedURL возвращает ссылку на скачивание, действующую ttl.
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
