package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

// wsURL rewrites an httptest server's http(s):// URL to its ws(s)://
// equivalent, the same scheme nhooyr.io/websocket.Dial expects.
func wsURL(t *testing.T, s *httptest.Server) string {
	t.Helper()
	if strings.HasPrefix(s.URL, "https://") {
		return "wss://" + strings.TrimPrefix(s.URL, "https://")
	}
	return "ws://" + strings.TrimPrefix(s.URL, "http://")
}

func TestClientAddRelayIsIdempotentAndPublishesEvents(t *testing.T) {
	received := make(chan []interface{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		var frame []interface{}
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Errorf("decode published frame: %v", err)
			return
		}
		received <- frame
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient()
	ctx := context.Background()
	url := wsURL(t, srv)

	require.NoError(t, c.AddRelay(ctx, url))
	require.NoError(t, c.AddRelay(ctx, url))
	require.Equal(t, []string{url}, c.Relays())

	ev := testEvent(t, KindPolicy, 100, []Tag{{Key: "p", Values: []string{"alice"}}})
	require.NoError(t, c.Publish(ctx, ev))

	select {
	case frame := <-received:
		require.Len(t, frame, 2)
		require.Equal(t, "EVENT", frame[0])
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the published event")
	}

	require.NoError(t, c.RemoveRelay(url))
	require.Empty(t, c.Relays())
}

func TestClientSubscribeDeliversEventsThenEOSE(t *testing.T) {
	ev := testEvent(t, KindProposal, 200, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		var frame []json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Errorf("decode REQ frame: %v", err)
			return
		}
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			t.Errorf("decode sub id: %v", err)
			return
		}

		eventFrame, err := json.Marshal([]interface{}{"EVENT", subID, toWireEvent(ev)})
		if err != nil {
			t.Errorf("encode EVENT frame: %v", err)
			return
		}
		if err := conn.Write(r.Context(), websocket.MessageText, eventFrame); err != nil {
			t.Errorf("write EVENT frame: %v", err)
			return
		}

		eoseFrame, err := json.Marshal([]interface{}{"EOSE", subID})
		if err != nil {
			t.Errorf("encode EOSE frame: %v", err)
			return
		}
		if err := conn.Write(r.Context(), websocket.MessageText, eoseFrame); err != nil {
			t.Errorf("write EOSE frame: %v", err)
			return
		}

		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient()
	ctx := context.Background()
	url := wsURL(t, srv)
	require.NoError(t, c.AddRelay(ctx, url))

	ch, err := c.Subscribe(ctx, url, []Filter{{Kinds: []Kind{KindProposal}}})
	require.NoError(t, err)

	var got []InboundMessage
	for i := 0; i < 2; i++ {
		select {
		case msg := <-ch:
			got = append(got, msg)
		case <-time.After(2 * time.Second):
			t.Fatal("subscription never delivered both messages")
		}
	}

	require.NotNil(t, got[0].Event)
	require.Equal(t, ev.Author, got[0].Event.Author)
	require.True(t, got[1].EOSE)
}

func TestClientSubscribeToUnknownRelayErrors(t *testing.T) {
	c := NewClient()
	_, err := c.Subscribe(context.Background(), "wss://not-connected.example", nil)
	require.Error(t, err)
}

func TestClientRemoveRelayOnUnknownURLIsNoop(t *testing.T) {
	c := NewClient()
	require.NoError(t, c.RemoveRelay("wss://never-added.example"))
}
