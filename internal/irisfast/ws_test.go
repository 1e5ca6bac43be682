package irisfast

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func startBridge(t *testing.T, replies chan<- ReplyRequest) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		greeting := Message{Msg: "hello", Room: "room-1", Sender: "iris"}
		if err := wsjson.Write(r.Context(), conn, &greeting); err != nil {
			return
		}
		var req ReplyRequest
		if err := wsjson.Read(r.Context(), conn, &req); err != nil {
			return
		}
		replies <- req
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketRoundTrip(t *testing.T) {
	replies := make(chan ReplyRequest, 1)
	ws := NewWebSocket(startBridge(t, replies), 0, 10*time.Millisecond)

	inbound := make(chan *Message, 1)
	ws.OnMessage(func(msg *Message) {
		select {
		case inbound <- msg:
		default:
		}
	})

	ctx := context.Background()
	if err := ws.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ws.Close(ctx)

	if !ws.Connected() {
		t.Fatal("expected connected state after dial")
	}

	select {
	case msg := <-inbound:
		if msg.Msg != "hello" || msg.Room != "room-1" {
			t.Fatalf("unexpected inbound message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound message")
	}

	eg := NewEgress("ws", false, nil, ws, nil)
	if err := eg.SendText(ctx, "room-1", "pong"); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case req := <-replies:
		if req.Type != "text" || req.Room != "room-1" || req.Data != "pong" {
			t.Fatalf("unexpected reply: %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bridge saw no reply")
	}
}

func TestSendTextWithoutConnection(t *testing.T) {
	ws := NewWebSocket("ws://127.0.0.1:0", 0, 10*time.Millisecond)
	eg := NewEgress("ws", false, nil, ws, nil)
	err := eg.SendText(context.Background(), "room-1", "hi")
	if !errors.Is(err, errWSNotConnected) {
		t.Fatalf("expected not-connected error, got %v", err)
	}
}

func TestConnectedSafeDuringClose(t *testing.T) {
	replies := make(chan ReplyRequest, 1)
	ws := NewWebSocket(startBridge(t, replies), 0, 10*time.Millisecond)

	ctx := context.Background()
	if err := ws.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ws.Connected()
				_ = ws.writeJSON(ctx, &ReplyRequest{Type: "text", Room: "room-1", Data: "x"})
			}
		}()
	}
	if err := ws.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()

	if ws.Connected() {
		t.Fatal("expected disconnected after close")
	}
}
