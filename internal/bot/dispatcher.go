package bot

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Dispatcher раскладывает задачи по воркерам по ключу (id участника).
// Задачи с одним ключом всегда попадают в один воркер и выполняются по порядку,
// задачи разных участников обрабатываются параллельно.
type Dispatcher[T any] struct {
	queues []chan T
	handle func(ctx context.Context, item T)

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDispatcher создаёт диспетчер с workers воркерами и очередью queueSize у каждого.
func NewDispatcher[T any](workers, queueSize int, handle func(ctx context.Context, item T)) *Dispatcher[T] {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	queues := make([]chan T, workers)
	for i := range queues {
		queues[i] = make(chan T, queueSize)
	}
	return &Dispatcher[T]{queues: queues, handle: handle}
}

// Start запускает воркеры. Воркер завершается после Stop, дочитав свою очередь.
func (d *Dispatcher[T]) Start(ctx context.Context) {
	for i, q := range d.queues {
		d.wg.Add(1)
		go func(id int, q <-chan T) {
			defer d.wg.Done()
			for item := range q {
				d.handle(ctx, item)
			}
			log.WithField("worker", id).Debug("Воркер остановлен")
		}(i, q)
	}
}

// Dispatch ставит задачу в очередь воркера, отвечающего за key.
// Если очередь заполнена — ждёт; false, если ctx отменён раньше.
func (d *Dispatcher[T]) Dispatch(ctx context.Context, key int64, item T) bool {
	q := d.queues[d.shard(key)]
	select {
	case q <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop закрывает очереди и ждёт завершения воркеров.
// После Stop вызывать Dispatch нельзя.
func (d *Dispatcher[T]) Stop() {
	d.stopOnce.Do(func() {
		for _, q := range d.queues {
			close(q)
		}
	})
	d.wg.Wait()
}

func (d *Dispatcher[T]) shard(key int64) int {
	return int(uint64(key) % uint64(len(d.queues)))
}
