package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/achuthan-s/oasis-chat-client/internal/domain"
	"github.com/achuthan-s/oasis-chat-client/internal/rest"
	"github.com/achuthan-s/oasis-chat-client/internal/session"
	"github.com/achuthan-s/oasis-chat-client/pkg/logger"
)

type fakeAPI struct {
	mu      sync.Mutex
	calls   int
	release chan struct{} // when set, Login blocks until closed
	result  rest.AuthResult
	err     error
}

func (f *fakeAPI) Login(ctx context.Context, username, password string) (rest.AuthResult, error) {
	f.mu.Lock()
	f.calls++
	release := f.release
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	return f.result, f.err
}

func (f *fakeAPI) Register(ctx context.Context, username, email, password string) (rest.AuthResult, error) {
	return f.Login(ctx, username, password)
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordStore struct {
	mu    sync.Mutex
	saved []domain.Session
	err   error
}

func (r *recordStore) Save(token string, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, domain.Session{Token: token, User: user})
	return nil
}

func testLogger() logger.Logger {
	return logger.NewLogger("error")
}

func TestSubmitSuccessPersistsSession(t *testing.T) {
	api := &fakeAPI{result: rest.AuthResult{
		Token: "t1",
		User:  domain.User{ID: 1, Username: "alice"},
	}}
	store := &recordStore{}
	c := NewController(api, store, testLogger())

	sess, err := c.Submit(context.Background(), KindLogin, Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "t1", sess.Token)
	assert.Equal(t, "alice", sess.User.Username)
	require.Len(t, store.saved, 1)
	assert.Equal(t, sess, store.saved[0])
}

func TestSubmitAPIFailureLeavesSessionAlone(t *testing.T) {
	api := &fakeAPI{err: &rest.APIError{Status: 401, Message: "invalid credentials"}}
	store := &recordStore{}
	c := NewController(api, store, testLogger())

	_, err := c.Submit(context.Background(), KindLogin, Credentials{Username: "alice", Password: "pw"})
	var apiErr *rest.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Empty(t, store.saved)

	// The form stays usable: a second attempt goes through.
	api.err = nil
	api.result = rest.AuthResult{Token: "t1", User: domain.User{ID: 1, Username: "alice"}}
	_, err = c.Submit(context.Background(), KindLogin, Credentials{Username: "alice", Password: "pw"})
	assert.NoError(t, err)
}

func TestSubmitNetworkFailureLeavesSessionAlone(t *testing.T) {
	api := &fakeAPI{err: errors.New("dial tcp: connection refused")}
	store := &recordStore{}
	c := NewController(api, store, testLogger())

	_, err := c.Submit(context.Background(), KindLogin, Credentials{Username: "alice", Password: "pw"})
	require.Error(t, err)
	assert.Empty(t, store.saved)
}

func TestSubmitSingleFlight(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		release: release,
		result:  rest.AuthResult{Token: "t1", User: domain.User{ID: 1, Username: "alice"}},
	}
	store := &recordStore{}
	c := NewController(api, store, testLogger())

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), KindLogin, Credentials{Username: "alice", Password: "pw"})
		done <- err
	}()

	require.Eventually(t, c.Pending, time.Second, 5*time.Millisecond)

	// A second submission while the first is pending must not trigger a
	// second request.
	_, err := c.Submit(context.Background(), KindLogin, Credentials{Username: "alice", Password: "pw"})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, api.callCount())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, c.Pending())

	// Guard released: submitting again works.
	api.release = nil
	_, err = c.Submit(context.Background(), KindLogin, Credentials{Username: "alice", Password: "pw"})
	assert.NoError(t, err)
	assert.Equal(t, 2, api.callCount())
}

func TestSubmitStoreFailure(t *testing.T) {
	api := &fakeAPI{result: rest.AuthResult{Token: "t1", User: domain.User{ID: 1, Username: "alice"}}}
	store := &recordStore{err: errors.New("disk full")}
	c := NewController(api, store, testLogger())

	_, err := c.Submit(context.Background(), KindLogin, Credentials{Username: "alice", Password: "pw"})
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "invalid credentials",
		Describe(&rest.APIError{Status: 401, Message: "invalid credentials"}))
	assert.Equal(t, "Network error. Please try again.",
		Describe(errors.New("dial tcp: timeout")))
	assert.Equal(t, "Please wait for the previous attempt to finish.", Describe(ErrBusy))
}

// End-to-end: real REST client and real file-backed store against a fake
// server, both the valid and invalid credential paths.
func TestLoginEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/login" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"token":"t1","user":{"id":1,"username":"alice"}}`))
	}))
	t.Cleanup(srv.Close)

	store := session.NewStore(filepath.Join(t.TempDir(), "session.json"))
	c := NewController(rest.NewClient(srv.URL), store, testLogger())

	sess, err := c.Submit(context.Background(), KindLogin, Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "t1", sess.Token)

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, sess, persisted)
}

func TestLoginEndToEndInvalidCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid credentials"}`))
	}))
	t.Cleanup(srv.Close)

	store := session.NewStore(filepath.Join(t.TempDir(), "session.json"))
	c := NewController(rest.NewClient(srv.URL), store, testLogger())

	_, err := c.Submit(context.Background(), KindLogin, Credentials{Username: "alice", Password: "bad"})
	assert.Equal(t, "invalid credentials", Describe(err))

	_, err = store.Load()
	assert.ErrorIs(t, err, session.ErrNoSession)
}
