package eventbus

import "testing"

func TestPublishSubscribe(t *testing.T) {
	b := New()
	_, ch := b.Subscribe()

	b.Publish(SessionStarted("s_1"))

	select {
	case e := <-ch:
		if e.Name != TopicSessionStarted || e.SessionID != "s_1" {
			t.Fatalf("unexpected event: %+v", e)
		}
	default:
		t.Fatalf("expected event to be delivered")
	}
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	b := New()
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	if b.SubscriberCount() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.SubscriberCount())
	}

	b.Publish(SessionStarted("s_1"))
	<-ch1
	<-ch2
}

func TestSubscribeSessionFiltersByID(t *testing.T) {
	b := New()
	_, ch := b.SubscribeSession("session-1")

	b.Publish(SessionStarted("session-1"))
	b.Publish(SessionStarted("session-2"))

	e := <-ch
	if e.SessionID != "session-1" {
		t.Fatalf("expected only session-1 event, got %+v", e)
	}
	select {
	case e2 := <-ch:
		t.Fatalf("did not expect a second event, got %+v", e2)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe")
	}
}
