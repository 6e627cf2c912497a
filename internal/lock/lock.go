// Package lock сериализует операции записи в журнал.
package lock

import (
	"context"
	"errors"
)

// ErrLeaseLost означает, что блокировка была потеряна до завершения операции.
var ErrLeaseLost = errors.New("writer lock lease lost")

// Locker выдаёт эксклюзивное право на запись. Возвращённый контекст действует, пока
// блокировка принадлежит вызывающему, и отменяется с причиной ErrLeaseLost при её потере.
// Возвращённую функцию нужно вызвать для освобождения блокировки.
type Locker interface {
	Lock(ctx context.Context) (context.Context, func(), error)
}

// MutexLocker сериализует запись внутри одного процесса.
type MutexLocker struct {
	sem chan struct{}
}

// NewMutexLocker создаёт блокировку процесса.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{sem: make(chan struct{}, 1)}
}

// Lock ждёт освобождения блокировки или отмены контекста.
func (m *MutexLocker) Lock(ctx context.Context) (context.Context, func(), error) {
	select {
	case m.sem <- struct{}{}:
		return ctx, func() { <-m.sem }, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}
