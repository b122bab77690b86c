package webchat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/harun/webchat/pkg/conversation"
	"github.com/harun/webchat/pkg/directline"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...interface{}) {
	l.mu.Lock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// index returns the position of call, or -1
func (l *callLog) index(call string) int {
	for i, c := range l.all() {
		if c == call {
			return i
		}
	}
	return -1
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.all() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeHandle struct {
	id         string
	log        *callLog
	activities chan directline.Activity
	done       chan struct{}
	once       sync.Once

	mu       sync.Mutex
	endCalls int
	posted   []directline.Activity
}

func newFakeHandle(id string, log *callLog) *fakeHandle {
	return &fakeHandle{
		id:         id,
		log:        log,
		activities: make(chan directline.Activity, 8),
		done:       make(chan struct{}),
	}
}

func (h *fakeHandle) ConversationID() string                 { return h.id }
func (h *fakeHandle) Activities() <-chan directline.Activity { return h.activities }
func (h *fakeHandle) Done() <-chan struct{}                  { return h.done }

func (h *fakeHandle) Post(ctx context.Context, act directline.Activity) (string, error) {
	select {
	case <-h.done:
		return "", directline.ErrEnded
	default:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.posted = append(h.posted, act)
	return fmt.Sprintf("act-%d", len(h.posted)), nil
}

func (h *fakeHandle) End() error {
	h.mu.Lock()
	h.endCalls++
	h.mu.Unlock()
	h.log.add("end:%s", h.id)
	h.close()
	return nil
}

// drop simulates the service closing the stream
func (h *fakeHandle) drop() {
	h.close()
}

func (h *fakeHandle) close() {
	h.once.Do(func() {
		close(h.done)
		close(h.activities)
	})
}

func (h *fakeHandle) ended() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *fakeHandle) ends() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.endCalls
}

type fakeBackend struct {
	log *callLog

	mu            sync.Mutex
	startResult   conversation.StartResult
	startErr      error
	startBlock    chan struct{}
	startRequests []conversation.StartRequest
	updateResult  conversation.UpdateResult
	updateErr     error
	fetchErr      error
	fetchOpts     []conversation.DirectLineOptions
	handleIDs     map[string]string
	handles       []*fakeHandle
	greetErr      error
	greetings     map[string][][]directline.ChannelAccount
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		log:          &callLog{},
		startResult:  conversation.StartResult{ConversationID: "c1", EndpointID: "e1"},
		updateResult: conversation.UpdateResult{EndpointID: "e2"},
		handleIDs:    make(map[string]string),
		greetings:    make(map[string][][]directline.ChannelAccount),
	}
}

var errBackendDown = &conversation.BackendError{Op: "test", Status: 503, Err: errors.New("down")}

func (b *fakeBackend) StartConversation(ctx context.Context, req conversation.StartRequest) (conversation.StartResult, error) {
	b.log.add("start:%s", req.BotURL)

	b.mu.Lock()
	b.startRequests = append(b.startRequests, req)
	block := b.startBlock
	res, err := b.startResult, b.startErr
	b.mu.Unlock()

	if block != nil {
		<-block
	}
	return res, err
}

func (b *fakeBackend) ConversationUpdate(ctx context.Context, oldID, newID, userID string) (conversation.UpdateResult, error) {
	b.log.add("update:%s->%s:%s", oldID, newID, userID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updateResult, b.updateErr
}

func (b *fakeBackend) FetchDirectLineObject(ctx context.Context, conversationID string, opts conversation.DirectLineOptions) (directline.Handle, error) {
	b.log.add("fetch:%s", conversationID)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetchOpts = append(b.fetchOpts, opts)
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}

	boundID := conversationID
	if override, ok := b.handleIDs[conversationID]; ok {
		boundID = override
	}
	h := newFakeHandle(boundID, b.log)
	b.handles = append(b.handles, h)
	return h, nil
}

func (b *fakeBackend) SendInitialActivity(ctx context.Context, conversationID string, members []directline.ChannelAccount) error {
	b.log.add("greet:%s", conversationID)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.greetErr != nil {
		return b.greetErr
	}
	b.greetings[conversationID] = append(b.greetings[conversationID], members)
	return nil
}

func (b *fakeBackend) handle(i int) *fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handles[i]
}

func (b *fakeBackend) greetingCount(conversationID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.greetings[conversationID])
}

type sequenceIDs struct {
	mu    sync.Mutex
	ids   []string
	calls int
}

func (s *sequenceIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("gen%d", s.calls)
	if s.calls < len(s.ids) {
		id = s.ids[s.calls]
	}
	s.calls++
	return id
}

func (s *sequenceIDs) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
