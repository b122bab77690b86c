package directline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu          sync.Mutex
	streamAuth  string
	streamPath  string
	posted      []Activity
	postAuth    string
	closeFrames int
	frames      [][]byte
	dropStream  bool
}

func newFakeService(t *testing.T, frames ...[]byte) (*fakeService, *httptest.Server) {
	fs := &fakeService{t: t, frames: frames}
	srv := httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeService) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/stream"):
		fs.mu.Lock()
		fs.streamAuth = r.Header.Get("Authorization")
		fs.streamPath = r.URL.Path
		frames := fs.frames
		drop := fs.dropStream
		fs.mu.Unlock()

		conn, err := fs.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, frame := range frames {
			_ = conn.WriteMessage(websocket.TextMessage, frame)
		}
		if drop {
			return
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					fs.mu.Lock()
					fs.closeFrames++
					fs.mu.Unlock()
				}
				return
			}
		}
	case strings.HasSuffix(r.URL.Path, "/activities") && r.Method == http.MethodPost:
		var act Activity
		if err := json.NewDecoder(r.Body).Decode(&act); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fs.mu.Lock()
		fs.posted = append(fs.posted, act)
		fs.postAuth = r.Header.Get("Authorization")
		fs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"act-1"}`))
	default:
		http.NotFound(w, r)
	}
}

func (fs *fakeService) closes() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.closeFrames
}

func activitySet(t *testing.T, watermark string, acts ...Activity) []byte {
	data, err := json.Marshal(ActivitySet{Activities: acts, Watermark: watermark})
	require.NoError(t, err)
	return data
}

func dialTest(t *testing.T, srv *httptest.Server, conversationID string) *Conn {
	d := &Dialer{
		Domain:      srv.URL + "/v3/directline",
		HTTPClient:  srv.Client(),
		DialTimeout: 2 * time.Second,
		Logger:      zerolog.Nop(),
	}
	conn, err := d.Dial(context.Background(), Token{ConversationID: conversationID, Token: "tok-123"})
	require.NoError(t, err)
	return conn
}

func TestConn_ReceivesActivities(t *testing.T) {
	fs, srv := newFakeService(t,
		activitySet(t, "1", Activity{Type: ActivityTypeMessage, Text: "hello"}),
		[]byte(""),
		[]byte("not json"),
		activitySet(t, "2", Activity{Type: ActivityTypeMessage, Text: "world"}),
	)

	conn := dialTest(t, srv, "c1")
	defer conn.End()

	var texts []string
	for len(texts) < 2 {
		select {
		case act := <-conn.Activities():
			texts = append(texts, act.Text)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for activities")
		}
	}

	assert.Equal(t, []string{"hello", "world"}, texts)
	assert.Equal(t, "c1", conn.ConversationID())
	assert.Equal(t, "2", conn.Watermark())

	fs.mu.Lock()
	assert.Equal(t, "Bearer tok-123", fs.streamAuth)
	assert.Equal(t, "/v3/directline/conversations/c1/stream", fs.streamPath)
	fs.mu.Unlock()
}

func TestConn_EndIsIdempotentAndSendsClose(t *testing.T) {
	fs, srv := newFakeService(t)
	conn := dialTest(t, srv, "c1")

	require.NoError(t, conn.End())
	require.NoError(t, conn.End())

	select {
	case <-conn.Done():
	default:
		t.Fatal("Done should be closed after End")
	}

	_, open := <-conn.Activities()
	assert.False(t, open)

	assert.Eventually(t, func() bool { return fs.closes() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestConn_ServiceDropEndsHandle(t *testing.T) {
	fs, srv := newFakeService(t)
	fs.mu.Lock()
	fs.dropStream = true
	fs.mu.Unlock()

	conn := dialTest(t, srv, "c1")

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected handle to end when the stream drops")
	}

	assert.NoError(t, conn.End())
}

func TestConn_Post(t *testing.T) {
	fs, srv := newFakeService(t)
	conn := dialTest(t, srv, "abc|conversation")
	defer conn.End()

	id, err := conn.Post(context.Background(), Activity{
		Type: ActivityTypeMessage,
		Text: "hi",
		From: &ChannelAccount{ID: "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "act-1", id)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.Len(t, fs.posted, 1)
	assert.Equal(t, "hi", fs.posted[0].Text)
	require.NotNil(t, fs.posted[0].Conversation)
	assert.Equal(t, "abc|conversation", fs.posted[0].Conversation.ID)
	assert.Equal(t, "Bearer tok-123", fs.postAuth)
}

func TestConn_PostAfterEnd(t *testing.T) {
	_, srv := newFakeService(t)
	conn := dialTest(t, srv, "c1")
	require.NoError(t, conn.End())

	_, err := conn.Post(context.Background(), Activity{Type: ActivityTypeMessage})
	assert.ErrorIs(t, err, ErrEnded)
}

func TestDialer_StreamURL(t *testing.T) {
	d := &Dialer{Domain: "https://host/v3/directline/"}

	t.Run("minted url wins", func(t *testing.T) {
		u, err := d.streamURL(Token{ConversationID: "c1", StreamURL: "wss://other/stream?t=x"})
		require.NoError(t, err)
		assert.Equal(t, "wss://other/stream?t=x", u)
	})

	t.Run("derived from domain", func(t *testing.T) {
		u, err := d.streamURL(Token{ConversationID: "c1", Token: "abc"})
		require.NoError(t, err)
		assert.Equal(t, "wss://host/v3/directline/conversations/c1/stream?t=abc", u)
	})

	t.Run("rejects http stream url", func(t *testing.T) {
		_, err := d.streamURL(Token{ConversationID: "c1", StreamURL: "http://other/stream"})
		assert.Error(t, err)
	})

	t.Run("no domain and no stream url", func(t *testing.T) {
		_, err := (&Dialer{}).streamURL(Token{ConversationID: "c1"})
		assert.Error(t, err)
	})
}

func TestDialer_RequiresConversationID(t *testing.T) {
	_, err := (&Dialer{Domain: "http://x"}).Dial(context.Background(), Token{})
	assert.Error(t, err)
}

func TestNewConversationUpdate(t *testing.T) {
	members := []ChannelAccount{{ID: "u1", Name: "User"}}
	act := NewConversationUpdate("c1", members)

	assert.Equal(t, ActivityTypeConversationUpdate, act.Type)
	assert.Equal(t, "c1", act.Conversation.ID)
	assert.Equal(t, members, act.MembersAdded)
	assert.Empty(t, act.MembersRemoved)
	require.NotNil(t, act.From)
	assert.Equal(t, "u1", act.From.ID)

	members[0].ID = "mutated"
	assert.Equal(t, "u1", act.MembersAdded[0].ID)
}
