package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	cfgpkg "github.com/storyhaven/ripple/internal/config"
	"github.com/storyhaven/ripple/internal/runtime"
	pebblestore "github.com/storyhaven/ripple/internal/storage/pebble"
)

func newTestServer(t *testing.T, mutate func(*cfgpkg.Config)) *httptest.Server {
	t.Helper()
	cfg := cfgpkg.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := runtime.Open(runtime.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
		Config:  cfg,
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	ts := httptest.NewServer(New(rt).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, userID string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-User-Name", strings.ToUpper(userID))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func createStory(t *testing.T, ts *httptest.Server, userID, storyID string) {
	t.Helper()
	resp := doJSON(t, ts, http.MethodPost, "/v1/stories/create", userID,
		map[string]string{"storyId": storyID, "title": "A Story"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create story: %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}

func TestTypingRequiresIdentity(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := doJSON(t, ts, http.MethodPost, "/v1/typing", "", map[string]string{"storyId": "st-1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}

func TestTypingBadRequestAndUnknownStory(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := doJSON(t, ts, http.MethodPost, "/v1/typing", "u-ana", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty storyId: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodPost, "/v1/typing", "u-ana", map[string]string{"storyId": "st-nope"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown story: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTypingLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	createStory(t, ts, "u-ana", "st-1")

	resp := doJSON(t, ts, http.MethodPost, "/v1/typing", "u-ben", map[string]string{"storyId": "st-1"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("start typing: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodGet, "/v1/typing?storyId=st-1", "u-ana", nil)
	var body struct {
		Typers []struct {
			SubscriberID string `json:"subscriberId"`
			DisplayName  string `json:"displayName"`
		} `json:"typers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(body.Typers) != 1 || body.Typers[0].SubscriberID != "u-ben" {
		t.Fatalf("typers: %+v", body.Typers)
	}

	// The requester is excluded from their own view.
	resp = doJSON(t, ts, http.MethodGet, "/v1/typing?storyId=st-1", "u-ben", nil)
	body.Typers = nil
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if len(body.Typers) != 0 {
		t.Fatalf("own entry visible: %+v", body.Typers)
	}

	resp = doJSON(t, ts, http.MethodDelete, "/v1/typing", "u-ben", map[string]string{"storyId": "st-1"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("stop typing: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodGet, "/v1/typing?storyId=st-1", "u-ana", nil)
	body.Typers = nil
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if len(body.Typers) != 0 {
		t.Fatalf("typers after stop: %+v", body.Typers)
	}
}

func TestTypingStopVariants(t *testing.T) {
	ts := newTestServer(t, nil)
	createStory(t, ts, "u-ana", "st-1")

	// POST with isTyping=false behaves like DELETE.
	resp := doJSON(t, ts, http.MethodPost, "/v1/typing", "u-ben",
		map[string]any{"storyId": "st-1", "isTyping": true})
	resp.Body.Close()
	resp = doJSON(t, ts, http.MethodPost, "/v1/typing", "u-ben",
		map[string]any{"storyId": "st-1", "isTyping": false})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("isTyping=false: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// DELETE accepts the story via query parameter.
	resp = doJSON(t, ts, http.MethodPost, "/v1/typing", "u-ben", map[string]string{"storyId": "st-1"})
	resp.Body.Close()
	resp = doJSON(t, ts, http.MethodDelete, "/v1/typing?storyId=st-1", "u-ben", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete by query: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodGet, "/v1/typing?storyId=st-1", "u-ana", nil)
	var body struct {
		Typers []any `json:"typers"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if len(body.Typers) != 0 {
		t.Fatalf("typers: %+v", body.Typers)
	}
}

func TestTypingRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *cfgpkg.Config) {
		c.Typing.RatePerSec = 1
		c.Typing.Burst = 1
	})
	createStory(t, ts, "u-ana", "st-1")

	resp := doJSON(t, ts, http.MethodPost, "/v1/typing", "u-ana", map[string]string{"storyId": "st-1"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("first: %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = doJSON(t, ts, http.MethodPost, "/v1/typing", "u-ana", map[string]string{"storyId": "st-1"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second should be limited: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestNotifyAndUnread(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := doJSON(t, ts, http.MethodPost, "/v1/notify", "u-ana",
		map[string]any{"channel": "user/u-ben", "payload": map[string]string{"kind": "comment"}})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("notify: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodGet, "/v1/unread", "u-ben", nil)
	var count struct {
		Count uint64 `json:"count"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&count)
	resp.Body.Close()
	if count.Count != 1 {
		t.Fatalf("unread: %d", count.Count)
	}

	resp = doJSON(t, ts, http.MethodPost, "/v1/unread/read", "u-ben", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("mark read: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodGet, "/v1/unread", "u-ben", nil)
	count.Count = 99
	_ = json.NewDecoder(resp.Body).Decode(&count)
	resp.Body.Close()
	if count.Count != 0 {
		t.Fatalf("unread after read: %d", count.Count)
	}
}

func TestDraftRoundTripOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	createStory(t, ts, "u-ana", "st-1")

	resp := doJSON(t, ts, http.MethodPost, "/v1/stories/draft", "u-ana",
		map[string]string{"storyId": "st-1", "content": "Once upon a time"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("draft post: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodGet, "/v1/stories/draft/status?storyId=st-1", "u-ana", nil)
	var st struct {
		State string `json:"state"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if st.State != "pending" && st.State != "saving" && st.State != "idle" {
		t.Fatalf("state: %q", st.State)
	}

	// Wait for the debounced save to land, then read the draft back.
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp = doJSON(t, ts, http.MethodGet, "/v1/stories/draft?storyId=st-1", "u-ana", nil)
		var draft struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&draft)
		resp.Body.Close()
		if draft.Content == "Once upon a time" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("draft never persisted, last content %q", draft.Content)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestSubscribeSSEStreamsEvents(t *testing.T) {
	ts := newTestServer(t, nil)
	createStory(t, ts, "u-ana", "st-1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		ts.URL+"/v1/realtime/subscribe?channels=user/u-ana,story/st-1&user_id=u-ana&user_name=Ana", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %s", ct)
	}

	// Another user starts typing; the stream should carry the update.
	go func() {
		time.Sleep(100 * time.Millisecond)
		r := doJSON(t, ts, http.MethodPost, "/v1/typing", "u-ben", map[string]string{"storyId": "st-1"})
		r.Body.Close()
	}()

	want := map[string]bool{"connected": false, "typing.snapshot": false, "typing.update": false}
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "event: ") {
			continue
		}
		typ := strings.TrimPrefix(line, "event: ")
		if _, ok := want[typ]; ok {
			want[typ] = true
		}
		all := true
		for _, seen := range want {
			all = all && seen
		}
		if all {
			return
		}
	}
	t.Fatalf("stream ended early, saw %v (scan err %v)", want, sc.Err())
}

func TestSubscribeSSERejectsForeignChannel(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/v1/realtime/subscribe?channels=user/u-other&user_id=u-ana")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		// SSE headers are set before validation, so the error may arrive
		// either as a status or as an empty immediate close. A non-200 means
		// the mapping worked.
		return
	}
	// Body must terminate without delivering any events.
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "event: ") {
			t.Fatalf("unauthorized stream delivered %q", sc.Text())
		}
	}
}

func TestSubscribeWebSocket(t *testing.T) {
	ts := newTestServer(t, nil)
	createStory(t, ts, "u-ana", "st-1")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") +
		"/v1/realtime/ws?channels=story/st-1&user_id=u-ana&user_name=Ana"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev struct {
		Type string `json:"type"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != "connected" {
		t.Fatalf("first frame: %s", ev.Type)
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if ev.Type != "typing.snapshot" {
		t.Fatalf("second frame: %s", ev.Type)
	}
}

func TestWebSocketRejectionCarriesCloseReason(t *testing.T) {
	ts := newTestServer(t, nil)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") +
		"/v1/realtime/ws?channels=user/u-other&user_id=u-ana"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatal("unauthorized channel delivered a frame")
	}
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("want close frame, got %v", err)
	}
	if ce.Code != websocket.ClosePolicyViolation || ce.Text == "" {
		t.Fatalf("close frame: code=%d text=%q", ce.Code, ce.Text)
	}
}

func TestPublishOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	createStory(t, ts, "u-ana", "st-1")

	resp := doJSON(t, ts, http.MethodPost, "/v1/realtime/publish", "u-ana",
		map[string]any{"channel": "story/st-1", "type": "notification", "payload": map[string]string{"hi": "there"}})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish: %d", resp.StatusCode)
	}
	var out struct {
		Delivered int `json:"delivered"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.Delivered != 0 {
		t.Fatalf("delivered with no subscribers: %d", out.Delivered)
	}
}
