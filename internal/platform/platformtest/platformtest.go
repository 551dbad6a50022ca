// Package platformtest provides an in-memory platform.Platform.
package platformtest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/TaomasSpace/clubhall-guard/internal/platform"
)

type Sent struct {
	ChannelID string
	Msg       platform.Message
}

// Fake records every call. Members and Reactions may be set before use.
type Fake struct {
	mu        sync.Mutex
	calls     []string
	sent      []Sent
	nextMsgID int

	Members   map[string]platform.Member
	Reactions []platform.User
	FailWith  error
}

func New() *Fake {
	return &Fake{Members: map[string]platform.Member{}}
}

func (f *Fake) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.FailWith
}

func (f *Fake) Timeout(_ context.Context, _, userID string, d time.Duration, _ string) error {
	return f.record("timeout " + userID + " " + d.String())
}

func (f *Fake) Kick(_ context.Context, _, userID, _ string) error { return f.record("kick " + userID) }

func (f *Fake) Ban(_ context.Context, _, userID, _ string) error { return f.record("ban " + userID) }

func (f *Fake) Member(_ context.Context, _, userID string) (platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.Members[userID]
	if !ok {
		return platform.Member{}, fmt.Errorf("unknown member %s", userID)
	}
	m.RoleIDs = slices.Clone(m.RoleIDs)
	return m, nil
}

func (f *Fake) AddRole(_ context.Context, _, userID, roleID string) error {
	return f.record("add " + userID + " " + roleID)
}

func (f *Fake) RemoveRole(_ context.Context, _, userID, roleID string) error {
	return f.record("remove " + userID + " " + roleID)
}

func (f *Fake) SendMessage(_ context.Context, channelID string, msg platform.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return "", f.FailWith
	}
	f.sent = append(f.sent, Sent{ChannelID: channelID, Msg: msg})
	f.nextMsgID++
	return fmt.Sprintf("msg%d", f.nextMsgID), nil
}

func (f *Fake) AddReaction(_ context.Context, _, messageID, emoji string) error {
	return f.record("react " + messageID + " " + emoji)
}

func (f *Fake) ReactionUsers(context.Context, string, string, string) ([]platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.Reactions), nil
}

func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent)
}
