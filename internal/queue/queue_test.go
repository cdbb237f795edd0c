package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Seq int
	Map string
}

func TestQueue_PushPopOrder(t *testing.T) {
	q := New[sample]()
	assert.True(t, q.Empty())

	q.Push(sample{Seq: 1}, sample{Seq: 2})
	q.Push(sample{Seq: 3})

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 1, q.Pop().Seq)
	assert.Equal(t, 2, q.Pop().Seq)
	assert.Equal(t, 3, q.Pop().Seq)
	assert.Equal(t, sample{}, q.Pop(), "empty pop returns zero value")
}

func TestQueue_GetAndEmpty(t *testing.T) {
	q := New[sample]()
	q.Push(sample{Seq: 1, Map: "customs"}, sample{Seq: 2, Map: "customs"})

	items := q.GetAndEmpty()
	assert.Len(t, items, 2)
	assert.True(t, q.Empty())

	q.Push(sample{Seq: 3})
	assert.Len(t, items, 2, "returned slice is not shared with the queue")
}

func TestQueue_Clear(t *testing.T) {
	q := New[sample]()
	q.Push(sample{Seq: 1})
	q.Clear()
	assert.Equal(t, 0, q.Len())
}

func TestQueue_BoundedDropsOldest(t *testing.T) {
	q := NewBounded[sample](3)
	for i := 1; i <= 5; i++ {
		q.Push(sample{Seq: i})
	}

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint64(2), q.Dropped())
	items := q.GetAndEmpty()
	assert.Equal(t, []int{3, 4, 5}, []int{items[0].Seq, items[1].Seq, items[2].Seq})
}

func TestQueue_RequeueGoesFirst(t *testing.T) {
	q := New[sample]()
	q.Push(sample{Seq: 1}, sample{Seq: 2})
	failed := q.GetAndEmpty()
	q.Push(sample{Seq: 3})

	q.Requeue(failed...)

	items := q.GetAndEmpty()
	assert.Equal(t, []int{1, 2, 3}, []int{items[0].Seq, items[1].Seq, items[2].Seq})
}

func TestQueue_RequeueRespectsLimit(t *testing.T) {
	q := NewBounded[sample](2)
	q.Push(sample{Seq: 3})
	q.Requeue(sample{Seq: 1}, sample{Seq: 2})

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, 2, q.Pop().Seq)
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := New[sample]()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(sample{Seq: i})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, q.Len())
}
