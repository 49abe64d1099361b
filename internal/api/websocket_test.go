package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, s *Server) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(s.router)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, srv
}

func TestWebSocketSendsConnectedMessage(t *testing.T) {
	s := newTestServer(t, &fakeFacade{}, nil)
	conn, srv := dialWS(t, s)
	defer srv.Close()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var got WSMessage
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "connected" {
		t.Errorf("Type = %q, want connected", got.Type)
	}
}

func TestWebSocketSubscribeReceivesAppStatusBroadcast(t *testing.T) {
	facade := &fakeFacade{}
	s := newTestServer(t, facade, nil)
	conn, srv := dialWS(t, s)
	defer srv.Close()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read connected: %v", err)
	}

	sub := WSSubscribeRequest{Action: "subscribe", Topics: []string{"app_status"}}
	body, _ := json.Marshal(sub)
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	facade.RegisterAppStatus(context.Background(), "app-one", 0)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage after broadcast: %v", err)
	}

	var got WSMessage
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Topic != "app_status" {
		t.Errorf("Topic = %q, want app_status", got.Topic)
	}
}

func TestWebSocketIgnoresUnsubscribedTopics(t *testing.T) {
	facade := &fakeFacade{}
	s := newTestServer(t, facade, nil)
	conn, srv := dialWS(t, s)
	defer srv.Close()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read connected: %v", err)
	}

	facade.RegisterAppStatus(context.Background(), "app-one", 0)

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected read timeout when client never subscribed")
	}
}
