package engine_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/atlasnet/atlas-go/engine"
)

// TestNotifier_PassByValue verifies that passing Notifier by value works as
// expected: all copies share the same channel.
func TestNotifier_PassByValue(t *testing.T) {
	notifier := engine.NewNotifier()

	var sent sync.WaitGroup
	sent.Add(1)
	go func(n engine.Notifier) {
		n.Notify()
		sent.Done()
	}(notifier)
	sent.Wait()

	select {
	case <-notifier.Channel():
	default:
		t.Fail()
	}
}

// TestNotifier_NoNotificationsInitially verifies a fresh notifier has no
// pending notification.
func TestNotifier_NoNotificationsInitially(t *testing.T) {
	notifier := engine.NewNotifier()
	select {
	case <-notifier.Channel():
		t.Fail()
	default:
	}
}

// TestNotifier_ManyNotifications verifies that many notifications without a
// consumer collapse into a single pending one.
func TestNotifier_ManyNotifications(t *testing.T) {
	notifier := engine.NewNotifier()

	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		go func() {
			notifier.Notify()
			wg.Done()
		}()
	}
	wg.Wait()

	// exactly one notification is pending
	select {
	case <-notifier.Channel():
	default:
		t.Fail()
	}
	select {
	case <-notifier.Channel():
		t.Fail()
	default:
	}
}

// TestNotifier_ManyConsumers spawns many blocking consumers and verifies one
// notification wakes exactly one of them.
func TestNotifier_ManyConsumers(t *testing.T) {
	notifier := engine.NewNotifier()

	woken := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		go func() {
			<-notifier.Channel()
			woken <- struct{}{}
		}()
	}

	notifier.Notify()

	select {
	case <-woken:
	case <-time.After(time.Second):
		t.Fatal("no consumer woke up")
	}
	select {
	case <-woken:
		t.Fatal("more than one consumer woke up")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Len(t, woken, 0)
}
