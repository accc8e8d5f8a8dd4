package twostep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/twostep/delivery"
)

const testPassword = "correct-horse-42"

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]Account
	saveErr  error
	findErr  error

	saves int
	finds int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{accounts: make(map[string]Account)}
}

func (f *fakeAccounts) FindByIdentifier(_ context.Context, id string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++

	if f.findErr != nil {
		return nil, f.findErr
	}
	acct, ok := f.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &acct, nil
}

func (f *fakeAccounts) Save(_ context.Context, acct *Account) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++

	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.accounts[acct.Email] = *acct
	saved := *acct
	return &saved, nil
}

func (f *fakeAccounts) ExistsByIdentifier(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.accounts[id]
	return ok, nil
}

func (f *fakeAccounts) get(t *testing.T, email string) Account {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[email]
	if !ok {
		t.Fatalf("account %q not stored", email)
	}
	return acct
}

func (f *fakeAccounts) put(acct Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[acct.Email] = acct
}

type message struct {
	to      string
	code    string
	purpose delivery.Purpose
}

type outbox struct {
	mu   sync.Mutex
	sent []message
	fail error
}

func (o *outbox) Deliver(_ context.Context, to, code string, purpose delivery.Purpose) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.sent = append(o.sent, message{to: to, code: code, purpose: purpose})
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

func (o *outbox) lastCode(t *testing.T) string {
	t.Helper()
	return o.last(t).code
}

func (o *outbox) last(t *testing.T) message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sent) == 0 {
		t.Fatalf("nothing delivered")
	}
	return o.sent[len(o.sent)-1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_750_000_000, 0).UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine   *Engine
	accounts *fakeAccounts
	email    *outbox
	sms      *outbox
	clock    *testClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEnv(t *testing.T, configure ...func(*Builder)) *testEnv {
	t.Helper()

	env := &testEnv{
		accounts: newFakeAccounts(),
		email:    &outbox{},
		sms:      &outbox{},
		clock:    newTestClock(),
	}
	b := New().
		WithConfig(testConfig()).
		WithAccountStore(env.accounts).
		WithEmailSender(env.email).
		WithSMSSender(env.sms).
		WithClock(env.clock.Now).
		WithMetricsEnabled(true)
	for _, fn := range configure {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func signupRequest(email string) SignupRequest {
	return SignupRequest{
		Email:           email,
		Password:        testPassword,
		ConfirmPassword: testPassword,
		FirstName:       "Ada",
		LastName:        "Lovelace",
	}
}

// verifiedAccount signs up and verifies an account, then applies mutate
// directly to the stored record.
func (env *testEnv) verifiedAccount(t *testing.T, email string, mutate func(*Account)) Account {
	t.Helper()
	ctx := context.Background()

	if _, err := env.engine.Signup(ctx, signupRequest(email)); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if err := env.engine.VerifyEmail(ctx, email, env.email.lastCode(t)); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	acct := env.accounts.get(t, email)
	if mutate != nil {
		mutate(&acct)
		env.accounts.put(acct)
	}
	return acct
}

func withoutTwoFactor(a *Account) {
	a.TwoFactorMethod = TwoFactorNone
	a.TwoFactorEnabled = false
}

func assertKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}
