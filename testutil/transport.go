package testutil

import "sync"

// Line is one message sent through FakeTransport.
type Line struct {
	Target string
	Text   string
}

// FakeTransport records outbound chat actions. Setting one of the *Err fields makes the matching
// call fail without recording it.
type FakeTransport struct {
	mu sync.Mutex

	Sent     []Line
	Joined   []string
	Departed []string
	Names    []string

	SayErr    error
	JoinErr   error
	DepartErr error
	NamesErr  error
}

// Say records a line for target.
func (f *FakeTransport) Say(target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SayErr != nil {
		return f.SayErr
	}
	f.Sent = append(f.Sent, Line{Target: target, Text: text})
	return nil
}

// Join records a channel join.
func (f *FakeTransport) Join(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.JoinErr != nil {
		return f.JoinErr
	}
	f.Joined = append(f.Joined, channel)
	return nil
}

// Depart records a channel part.
func (f *FakeTransport) Depart(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DepartErr != nil {
		return f.DepartErr
	}
	f.Departed = append(f.Departed, channel)
	return nil
}

// RequestNames records a membership request.
func (f *FakeTransport) RequestNames(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NamesErr != nil {
		return f.NamesErr
	}
	f.Names = append(f.Names, channel)
	return nil
}

// SentLines returns a copy of the recorded lines.
func (f *FakeTransport) SentLines() []Line {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Line(nil), f.Sent...)
}

// NameRequests returns a copy of the recorded membership requests.
func (f *FakeTransport) NameRequests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Names...)
}

// JoinedChannels returns a copy of the recorded joins.
func (f *FakeTransport) JoinedChannels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Joined...)
}
