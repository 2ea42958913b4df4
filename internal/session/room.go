package session

import (
	"context"
	"sort"

	"collab-service/internal/models"
)

// roomState is the cache of one open room. Only the room's actor goroutine touches it.
type roomState struct {
	roomID    int
	messages  []models.ChatMessage
	typing    map[int]bool
	presence  map[int]models.UserPresence
	connected bool
	hasMore   bool
}

func (st *roomState) indexOf(id int) int {
	for i := range st.messages {
		if st.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// insert adds msg in display order. Redelivered notifications replace the cached copy.
func (st *roomState) insert(msg models.ChatMessage) {
	if i := st.indexOf(msg.ID); i >= 0 {
		st.messages[i] = msg
		return
	}
	i := sort.Search(len(st.messages), func(i int) bool { return msg.Less(st.messages[i]) })
	st.messages = append(st.messages, models.ChatMessage{})
	copy(st.messages[i+1:], st.messages[i:])
	st.messages[i] = msg
}

func (st *roomState) update(msg models.ChatMessage) {
	if i := st.indexOf(msg.ID); i >= 0 {
		st.messages[i] = msg
	}
}

// replaceLatest swaps the cache for a freshly fetched newest page, keeping only cached
// messages newer than the page.
func (st *roomState) replaceLatest(page []models.ChatMessage, pageSize int) {
	fresh := sortedCopy(page)
	seen := make(map[int]struct{}, len(fresh))
	for _, m := range fresh {
		seen[m.ID] = struct{}{}
	}
	var newest *models.ChatMessage
	if len(fresh) > 0 {
		last := fresh[len(fresh)-1]
		newest = &last
	}
	for _, m := range st.messages {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		if newest == nil || newest.Less(m) {
			fresh = append(fresh, m)
		}
	}
	sortMessages(fresh)
	st.messages = fresh
	st.hasMore = len(page) >= pageSize
}

// prependOlder merges a page of older history.
func (st *roomState) prependOlder(page []models.ChatMessage, pageSize int) {
	for _, m := range page {
		if st.indexOf(m.ID) < 0 {
			st.messages = append(st.messages, m)
		}
	}
	sortMessages(st.messages)
	st.hasMore = len(page) >= pageSize
}

func (st *roomState) setTyping(userID int, isTyping bool) {
	if isTyping {
		st.typing[userID] = true
		return
	}
	delete(st.typing, userID)
}

func (st *roomState) setPresence(p models.UserPresence) {
	st.presence[p.UserID] = p
	if p.Status == models.PresenceOffline {
		delete(st.typing, p.UserID)
	}
}

func sortMessages(msgs []models.ChatMessage) {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Less(msgs[j]) })
}

func sortedCopy(msgs []models.ChatMessage) []models.ChatMessage {
	out := append([]models.ChatMessage(nil), msgs...)
	sortMessages(out)
	return out
}

// roomActor serializes every mutation of one room's state. It implements realtime.Handler;
// callbacks post closures and never touch the state directly.
type roomActor struct {
	s      *Session
	ops    chan func(*roomState)
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	state  roomState

	subscribed bool
}

func newRoomActor(s *Session, roomID int) *roomActor {
	ctx, cancel := context.WithCancel(s.base)
	a := &roomActor{
		s:      s,
		ops:    make(chan func(*roomState), 64),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state: roomState{
			roomID:   roomID,
			typing:   make(map[int]bool),
			presence: make(map[int]models.UserPresence),
		},
	}
	go a.run()
	return a
}

func (a *roomActor) roomID() int { return a.state.roomID }

func (a *roomActor) run() {
	defer close(a.done)
	for {
		select {
		case <-a.ctx.Done():
			return
		case op := <-a.ops:
			op(&a.state)
			a.s.notify()
		}
	}
}

// post queues op. It reports false once the actor has stopped.
func (a *roomActor) post(op func(*roomState)) bool {
	select {
	case <-a.ctx.Done():
		return false
	case a.ops <- op:
		return true
	}
}

// query runs fn on the actor and waits for it.
func (a *roomActor) query(fn func(*roomState)) bool {
	ran := make(chan struct{})
	if !a.post(func(st *roomState) {
		fn(st)
		close(ran)
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-a.done:
		return false
	}
}

func (a *roomActor) stop() {
	a.cancel()
	<-a.done
}

func (a *roomActor) OnSubscribed(roomID int, resumed bool) {
	a.post(func(st *roomState) { st.connected = true })
	if resumed {
		go a.s.refreshLatest(a)
	}
}

func (a *roomActor) OnMessage(msg models.ChatMessage) {
	a.post(func(st *roomState) {
		st.insert(msg)
		delete(st.typing, msg.SenderID)
	})
}

func (a *roomActor) OnMessageUpdated(msg models.ChatMessage) {
	a.post(func(st *roomState) { st.update(msg) })
}

func (a *roomActor) OnPresence(p models.UserPresence) {
	if p.UserID == a.s.selfID {
		return
	}
	a.post(func(st *roomState) { st.setPresence(p) })
}

func (a *roomActor) OnTyping(userID int, isTyping bool) {
	a.post(func(st *roomState) { st.setTyping(userID, isTyping) })
}

func (a *roomActor) OnDisconnected(roomID int, err error) {
	a.post(func(st *roomState) {
		st.connected = false
		st.typing = make(map[int]bool)
	})
}

func (a *roomActor) OnError(err error) {
	if a.ctx.Err() == nil {
		a.s.recordErr(err)
	}
}
