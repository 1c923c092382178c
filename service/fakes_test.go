package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/layer-3/sentinel/adapters/store"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/ports"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

const (
	testURL    = "https://dapp.example/app"
	testOrigin = "dapp.example"
	aliceAddr  = "0xalice"
	bobAddr    = "0xbob"
)

var testTime = time.UnixMilli(1700000000000).UTC()

var errStoreDown = errors.New("store down")

// flakyStore is a memory store whose writes can be made to fail.
type flakyStore struct {
	ports.Store
	failWrites atomic.Bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: store.NewMemoryStore()}
}

func (s *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if s.failWrites.Load() {
		return errStoreDown
	}
	return s.Store.Set(ctx, key, value)
}

func (s *flakyStore) Remove(ctx context.Context, key string) error {
	if s.failWrites.Load() {
		return errStoreDown
	}
	return s.Store.Remove(ctx, key)
}

type fakePair struct {
	password string
	locked   bool
}

type fakeKeyring struct {
	mu    sync.Mutex
	order []string
	pairs map[string]*fakePair
	locks int
}

func newFakeKeyring() *fakeKeyring {
	k := &fakeKeyring{pairs: make(map[string]*fakePair)}
	k.add(aliceAddr, "alice-pw")
	k.add(bobAddr, "bob-pw")
	return k
}

func (k *fakeKeyring) add(address, password string) {
	k.order = append(k.order, address)
	k.pairs[address] = &fakePair{password: password, locked: true}
}

func (k *fakeKeyring) Accounts(context.Context) ([]core.Account, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	accounts := make([]core.Account, 0, len(k.order))
	for _, addr := range k.order {
		accounts = append(accounts, core.Account{Address: addr, Type: "fake"})
	}
	return accounts, nil
}

func (k *fakeKeyring) IsLocked(address string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.pairs[address]
	if !ok {
		return false, fmt.Errorf("%w: %s", core.ErrNotFound, address)
	}
	return p.locked, nil
}

func (k *fakeKeyring) Unlock(_ context.Context, address, password string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.pairs[address]
	if !ok {
		return core.ErrNotFound
	}
	if p.password != password {
		return core.ErrInvalidPassword
	}
	p.locked = false
	return nil
}

func (k *fakeKeyring) Lock(address string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.pairs[address]
	if !ok {
		return core.ErrNotFound
	}
	p.locked = true
	k.locks++
	return nil
}

func (k *fakeKeyring) Sign(_ context.Context, address string, msg []byte) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.pairs[address]
	if !ok {
		return "", core.ErrNotFound
	}
	if p.locked {
		return "", errors.New("pair is locked")
	}
	return fmt.Sprintf("0x%x", msg), nil
}

func (k *fakeKeyring) isLocked(address string) bool {
	locked, _ := k.IsLocked(address)
	return locked
}

type fakeUI struct {
	mu     sync.Mutex
	badges []string
	opens  []core.NotificationMode
	closes int
}

func (u *fakeUI) SetBadge(_ context.Context, text string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.badges = append(u.badges, text)
	return nil
}

func (u *fakeUI) Open(_ context.Context, mode core.NotificationMode) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.opens = append(u.opens, mode)
	return nil
}

func (u *fakeUI) Close(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closes++
	return nil
}

func (u *fakeUI) counts() (opens, closes int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.opens), u.closes
}

func (u *fakeUI) lastBadge() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.badges) == 0 {
		return ""
	}
	return u.badges[len(u.badges)-1]
}

type fakeProvider struct {
	mu   sync.Mutex
	subs map[int]func(json.RawMessage)
	next int

	closeOnce    sync.Once
	disconnected chan struct{}
	disconnects  atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subs:         make(map[int]func(json.RawMessage)),
		disconnected: make(chan struct{}),
	}
}

func (p *fakeProvider) Send(_ context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(map[string]interface{}{"method": method, "params": len(params)})
}

func (p *fakeProvider) Subscribe(_ context.Context, _ string, _ []json.RawMessage,
	cb func(json.RawMessage)) (func(), error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.next
	p.next++
	p.subs[id] = cb
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}, nil
}

// emit pushes a notification to every live subscription.
func (p *fakeProvider) emit(msg string) {
	p.mu.Lock()
	cbs := make([]func(json.RawMessage), 0, len(p.subs))
	for _, cb := range p.subs {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()

	for _, cb := range cbs {
		cb(json.RawMessage(msg))
	}
}

func (p *fakeProvider) liveSubs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *fakeProvider) Disconnected() <-chan struct{} {
	return p.disconnected
}

func (p *fakeProvider) Disconnect() {
	p.disconnects.Add(1)
	p.drop()
}

// drop simulates a lost node connection.
func (p *fakeProvider) drop() {
	p.closeOnce.Do(func() { close(p.disconnected) })
}

type fakeFactory struct {
	mu        sync.Mutex
	dials     int
	providers []*fakeProvider
	dialErr   error
	gate      chan struct{}
}

func (f *fakeFactory) Providers() map[string]core.ProviderMeta {
	return map[string]core.ProviderMeta{
		"westend": {Network: "westend", Node: "wss://westend.example", Source: "test", Transport: "WsProvider"},
		"kusama":  {Network: "kusama", Node: "wss://kusama.example", Source: "test", Transport: "WsProvider"},
	}
}

func (f *fakeFactory) Dial(ctx context.Context, key string) (ports.Provider, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.dials++
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	p := newFakeProvider()
	f.providers = append(f.providers, p)
	return p, nil
}

func (f *fakeFactory) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeFactory) last() *fakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providers[len(f.providers)-1]
}

// recorder is a Sink collecting everything sent to a session.
type recorder struct {
	ch chan core.Response
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan core.Response, 256)}
}

func (r *recorder) Send(resp core.Response) {
	select {
	case r.ch <- resp:
	default:
	}
}

func (r *recorder) next(t *testing.T) core.Response {
	t.Helper()

	select {
	case resp := <-r.ch:
		return resp
	case <-time.After(time.Second):
		t.Fatal("no response received")
	}
	return core.Response{}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()

	select {
	case resp := <-r.ch:
		t.Fatalf("unexpected response %+v", resp)
	case <-time.After(50 * time.Millisecond):
	}
}

type testBroker struct {
	*Broker

	store    *flakyStore
	keyring  *fakeKeyring
	ui       *fakeUI
	factory  *fakeFactory
	clock    *clock.TestClock
	opened   int
}

func newTestBroker(t *testing.T) *testBroker {
	t.Helper()

	tb := &testBroker{
		store:   newFlakyStore(),
		keyring: newFakeKeyring(),
		ui:      &fakeUI{},
		factory: &fakeFactory{},
		clock:   clock.NewTestClock(testTime),
	}
	tb.Broker = NewBroker(Config{
		Store:     tb.store,
		Keyring:   tb.keyring,
		UI:        tb.ui,
		Providers: tb.factory,
		Clock:     tb.clock,
	})
	require.NoError(t, tb.Load(context.Background()))

	return tb
}

// open registers a session and returns its id and recorder.
func (tb *testBroker) open(t *testing.T, privileged bool) (string, *recorder) {
	t.Helper()

	tb.opened++
	id := fmt.Sprintf("session-%d", tb.opened)
	rec := newRecorder()
	require.NoError(t, tb.OpenSession(id, privileged, rec))
	return id, rec
}

// call dispatches synchronously.
func (tb *testBroker) call(session, kind string, payload interface{}) core.Response {
	return tb.Dispatch(context.Background(), envelope(session, kind, testURL, payload))
}

// callAsync dispatches in the background, for kinds that wait on a
// decision.
func (tb *testBroker) callAsync(session, kind string, payload interface{}) <-chan core.Response {
	out := make(chan core.Response, 1)
	env := envelope(session, kind, testURL, payload)
	go func() {
		out <- tb.Dispatch(context.Background(), env)
	}()
	return out
}

// authorize records a grant for testOrigin directly in the store.
func (tb *testBroker) authorize(t *testing.T, accounts ...string) {
	t.Helper()
	require.NoError(t, tb.Auth().RecordDecision(context.Background(), testOrigin, testURL, accounts, false))
}

var envCounter atomic.Uint64

func envelope(session, kind, origin string, payload interface{}) core.Envelope {
	env := core.Envelope{
		ID:        fmt.Sprintf("env-%d", envCounter.Add(1)),
		Kind:      kind,
		Origin:    origin,
		SessionID: session,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			panic(err)
		}
		env.Payload = data
	}
	return env
}

func await(t *testing.T, ch <-chan core.Response) core.Response {
	t.Helper()

	select {
	case resp := <-ch:
		return resp
	case <-time.After(time.Second):
		t.Fatal("request did not complete")
	}
	return core.Response{}
}

func pendingSoon(t *testing.T, ch <-chan core.Response) {
	t.Helper()

	select {
	case resp := <-ch:
		t.Fatalf("request completed early: %+v", resp)
	case <-time.After(20 * time.Millisecond):
	}
}
