package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"beacon/e2e/frames"
)

// TestContext carries state between the steps of one scenario.
type TestContext struct {
	BaseURL string
	client  *http.Client

	lastStatus int
	lastBody   []byte

	sockets map[string]*websocket.Conn
}

func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		sockets: make(map[string]*websocket.Conn),
	}
}

// Reset closes sockets and clears the last response between scenarios.
func (tc *TestContext) Reset() {
	for name, conn := range tc.sockets {
		_ = conn.Close()
		delete(tc.sockets, name)
	}
	tc.lastStatus = 0
	tc.lastBody = nil
}

func (tc *TestContext) POST(path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, tc.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return tc.do(req)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodGet, tc.BaseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GetLastStatus() int {
	return tc.lastStatus
}

// GetResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %s", tc.lastBody)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("response has no field %q: %s", field, tc.lastBody)
	}
	return v, nil
}

// Connect opens a named websocket client.
func (tc *TestContext) Connect(name string) error {
	url := "ws" + strings.TrimPrefix(tc.BaseURL, "http") + "/socket"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	tc.sockets[name] = conn
	return nil
}

func (tc *TestContext) Send(name, event string, data any) error {
	conn, ok := tc.sockets[name]
	if !ok {
		return fmt.Errorf("no socket named %q", name)
	}
	return conn.WriteJSON(map[string]any{"event": event, "data": data})
}

// Await reads frames until one with the given event arrives.
func (tc *TestContext) Await(name, event string, timeout time.Duration) (frames.Frame, error) {
	conn, ok := tc.sockets[name]
	if !ok {
		return frames.Frame{}, fmt.Errorf("no socket named %q", name)
	}
	deadline := time.Now().Add(timeout)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return frames.Frame{}, err
		}
		var f frames.Frame
		if err := conn.ReadJSON(&f); err != nil {
			return frames.Frame{}, fmt.Errorf("waiting for %q on %s: %w", event, name, err)
		}
		if f.Event == event {
			return f, nil
		}
	}
}
