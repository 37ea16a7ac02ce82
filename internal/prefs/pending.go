package prefs

import "sync"

// Awaiting names the input a user was prompted for.
type Awaiting int

const (
	AwaitNothing Awaiting = iota
	AwaitThumbnail
	AwaitChannel
	AwaitCaption
)

// Pending tracks which users owe the bot a reply to a settings prompt.
type Pending struct {
	mu    sync.Mutex
	users map[int64]Awaiting
}

func NewPending() *Pending {
	return &Pending{users: make(map[int64]Awaiting)}
}

// Expect records that userID was prompted for a.
func (p *Pending) Expect(userID int64, a Awaiting) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a == AwaitNothing {
		delete(p.users, userID)
		return
	}
	p.users[userID] = a
}

// Take returns and clears what userID was prompted for.
func (p *Pending) Take(userID int64) Awaiting {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.users[userID]
	delete(p.users, userID)
	return a
}

// Peek returns what userID was prompted for without clearing it.
func (p *Pending) Peek(userID int64) Awaiting {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.users[userID]
}

// Cancel clears any prompt and reports whether one was pending.
func (p *Pending) Cancel(userID int64) bool {
	return p.Take(userID) != AwaitNothing
}
