package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestEventStreamDeliversLifecycleEvents(t *testing.T) {
	root := t.TempDir()
	writeDap(t, root, "chat", "application:\n  enabled: false\n", true)
	env := newTestEnv(t, root)

	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/dapla/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial event stream: %v", err)
	}
	defer conn.Close()
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/dapla/dap", strings.NewReader(`{"dap_name":"chat","enabled":true}`))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	httpResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("enable dap: %v", err)
	}
	httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		t.Fatalf("enable status = %d", httpResp.StatusCode)
	}

	statuses := make([]string, 0, 2)
	for len(statuses) < 2 {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg eventMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read event: %v (got %v so far)", err, statuses)
		}
		if msg.Topic != "daps.status" {
			continue
		}
		payload, ok := msg.Payload.(map[string]any)
		if !ok {
			t.Fatalf("unexpected payload %T", msg.Payload)
		}
		if payload["name"] != "chat" {
			continue
		}
		status, _ := payload["status"].(string)
		statuses = append(statuses, status)
	}

	if statuses[0] != "enabled" || statuses[1] != "loaded" {
		t.Fatalf("unexpected status order %v", statuses)
	}
}

func TestEventStreamClosesWithClient(t *testing.T) {
	env := newTestEnv(t, t.TempDir())

	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/dapla/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial event stream: %v", err)
	}
	resp.Body.Close()

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		t.Fatalf("send close: %v", err)
	}
	conn.Close()
}
