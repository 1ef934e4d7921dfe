package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/dukerupert/fampulse/internal/recordstore"
	"github.com/dukerupert/fampulse/internal/recordstore/storetest"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub) *Client {
	return NewClient(hub, nil)
}

func newHub(t *testing.T) (*Hub, *recordstore.SQLStore) {
	t.Helper()
	store := storetest.New(t)
	return NewHub(store, slog.Default()), store
}

func TestRegisterUnregister(t *testing.T) {
	var opened, closed atomic.Int32
	store := storetest.New(t)
	hub := NewHub(store, slog.Default(), WithConnHooks(
		func() { opened.Add(1) },
		func() { closed.Add(1) },
	))

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}
	// Should not panic or count twice
	hub.Unregister(c1)
	hub.Unregister(c2)

	if opened.Load() != 2 || closed.Load() != 2 {
		t.Errorf("hooks opened=%d closed=%d, want 2/2", opened.Load(), closed.Load())
	}
}

func TestHandleSubscribeAndChange(t *testing.T) {
	hub, store := newHub(t)
	c := mockClient(hub)
	hub.Register(c)

	filter := recordstore.Eq("family_id", "fam-1")
	reply := c.handle(Message{Type: TypeSubscribe, Sub: "list", Table: "shopping_list", Filter: &filter})
	if reply.Type != TypeSubscribed {
		t.Fatalf("reply = %+v", reply)
	}
	if store.Feed().Count() != 1 {
		t.Fatalf("feed subscriptions = %d", store.Feed().Count())
	}

	ctx := context.Background()
	_, err := store.Insert(ctx, "grocery_items", recordstore.Row{"id": "milk", "family_id": "fam-1", "name": "Milk", "quantity_type": "liters"})
	if err != nil {
		t.Fatalf("insert item: %v", err)
	}
	for _, fam := range []string{"fam-2", "fam-1"} {
		if _, err := store.Insert(ctx, "shopping_list", recordstore.Row{"family_id": fam, "item_id": "milk", "quantity": 1.0, "added_by": "asha"}); err != nil {
			t.Fatalf("insert entry: %v", err)
		}
	}

	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != TypeChange || got.Sub != "list" {
			t.Fatalf("message = %+v", got)
		}
		if got.Change.New.String("family_id") != "fam-1" {
			t.Errorf("change for wrong family: %v", got.Change.New)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for change")
	}
	select {
	case data := <-c.send:
		t.Fatalf("unexpected extra message %s", data)
	default:
	}

	hub.Unregister(c)
	if store.Feed().Count() != 0 {
		t.Errorf("subscriptions left after unregister: %d", store.Feed().Count())
	}
}

func TestHandleErrors(t *testing.T) {
	hub, _ := newHub(t)
	c := mockClient(hub)

	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"missing sub", Message{Type: TypeSubscribe, Table: "profiles"}, "sub is required"},
		{"unknown table", Message{Type: TypeSubscribe, Sub: "a", Table: "passwords"}, "invalid"},
		{"unknown column", Message{Type: TypeSubscribe, Sub: "a", Table: "profiles", Filter: &recordstore.Filter{Column: "secret", Op: recordstore.OpEq, Value: "x"}}, "invalid"},
		{"unknown sub", Message{Type: TypeUnsubscribe, Sub: "nope"}, "no subscription"},
		{"unknown type", Message{Type: "publish", Sub: "a"}, "unknown message type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.handle(tt.msg)
			if got.Type != TypeError || !strings.Contains(got.Error, tt.want) {
				t.Errorf("reply = %+v, want error containing %q", got, tt.want)
			}
		})
	}

	if r := c.handle(Message{Type: TypeSubscribe, Sub: "p", Table: "profiles"}); r.Type != TypeSubscribed {
		t.Fatalf("subscribe: %+v", r)
	}
	if r := c.handle(Message{Type: TypeSubscribe, Sub: "p", Table: "profiles"}); r.Type != TypeError {
		t.Errorf("duplicate subscribe accepted: %+v", r)
	}
	if r := c.handle(Message{Type: TypeUnsubscribe, Sub: "p"}); r.Type != TypeUnsubscribed {
		t.Errorf("unsubscribe: %+v", r)
	}
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub, _ := newHub(t)

	c := mockClient(hub)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(Message{Type: TypeClosing})
	}
	// This should drop the message, not panic or block
	hub.Broadcast(Message{Type: TypeClosing})

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("expected %d queued messages, got %d", sendBufferSize, got)
	}
	hub.Unregister(c)
	// Enqueue after close must not panic
	c.enqueue([]byte("late"))
}

func TestConcurrentAccess(t *testing.T) {
	hub, store := newHub(t)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub)
			hub.Register(c)
			c.handle(Message{Type: TypeSubscribe, Sub: "p", Table: "profiles"})
			hub.Broadcast(Message{Type: TypeClosing})
			hub.Unregister(c)
		}()
	}
	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
	if got := store.Feed().Count(); got != 0 {
		t.Errorf("expected 0 subscriptions, got %d", got)
	}
}

func TestRealtimeOverWebSocket(t *testing.T) {
	hub, store := newHub(t)
	srv := httptest.NewServer(HandleWebSocket(hub, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, Message{Type: TypeSubscribe, Sub: "p", Table: "profiles"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply Message
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply.Type != TypeSubscribed {
		t.Fatalf("reply = %+v", reply)
	}

	if _, err := store.Insert(ctx, "profiles", recordstore.Row{"id": "asha", "full_name": "Asha"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var change Message
	if err := wsjson.Read(ctx, conn, &change); err != nil {
		t.Fatalf("read change: %v", err)
	}
	if change.Type != TypeChange || change.Change.Type != recordstore.ChangeInsert || change.Change.New.String("id") != "asha" {
		t.Errorf("change = %+v", change)
	}

	if err := wsjson.Write(ctx, conn, Message{Type: TypeUnsubscribe, Sub: "p"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := wsjson.Read(ctx, conn, &reply); err != nil || reply.Type != TypeUnsubscribed {
		t.Fatalf("unsubscribe reply = %+v, %v", reply, err)
	}

	conn.Close(ws.StatusNormalClosure, "")
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Error("client not unregistered after close")
	}
}
