package rwlock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"synch/wait"
)

func TestReadersConcurrent(t *testing.T) {
	l := New()
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts := wait.NewThreadState(nil, nil)
			if err := l.RLock(ts); err != nil {
				t.Errorf("rlock: %v", err)
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxActive)
				if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			if err := l.RUnlock(); err != nil {
				t.Errorf("runlock: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxActive < 2 {
		t.Fatalf("expected readers to overlap, max concurrent was %d", maxActive)
	}
}

func TestWriterExcludesReaders(t *testing.T) {
	l := New()
	writer := wait.NewThreadState(nil, nil)

	if err := l.Lock(writer); err != nil {
		t.Fatalf("lock: %v", err)
	}

	readerDone := make(chan struct{})
	go func() {
		ts := wait.NewThreadState(nil, nil)
		if err := l.RLock(ts); err != nil {
			t.Errorf("rlock: %v", err)
			return
		}
		close(readerDone)
		l.RUnlock()
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-readerDone:
		t.Fatal("reader acquired while writer held the lock")
	default:
	}

	if err := l.Unlock(writer); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	select {
	case <-readerDone:
	case <-time.After(time.Second):
		t.Fatal("reader never acquired after writer released")
	}
}

func TestWriterExcludesWriter(t *testing.T) {
	l := New()
	a := wait.NewThreadState(nil, nil)
	b := wait.NewThreadState(nil, nil)

	if err := l.Lock(a); err != nil {
		t.Fatalf("a lock: %v", err)
	}

	bDone := make(chan struct{})
	go func() {
		if err := l.Lock(b); err != nil {
			t.Errorf("b lock: %v", err)
			return
		}
		close(bDone)
		l.Unlock(b)
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-bDone:
		t.Fatal("second writer acquired while first held the lock")
	default:
	}

	if err := l.Unlock(a); err != nil {
		t.Fatalf("a unlock: %v", err)
	}

	select {
	case <-bDone:
	case <-time.After(time.Second):
		t.Fatal("second writer never acquired")
	}
}

func TestRUnlockWithoutRLockPanics(t *testing.T) {
	l := New()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic from unbalanced RUnlock")
		}
	}()
	l.RUnlock()
}
