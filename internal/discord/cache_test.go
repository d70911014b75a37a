package discord

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis is an in-memory stand-in for a Redis server that understands
// GET and SET.
type fakeRedis struct {
	mu       sync.Mutex
	data     map[string]string
	commands [][]any
	fail     error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get() redis.Conn { return &fakeConn{srv: f} }

type fakeConn struct {
	srv *fakeRedis
}

func (c *fakeConn) Close() error { return nil }
func (c *fakeConn) Err() error   { return nil }

func (c *fakeConn) Do(cmd string, args ...any) (any, error) {
	f := c.srv
	f.mu.Lock()
	defer f.mu.Unlock()

	f.commands = append(f.commands, append([]any{cmd}, args...))
	if f.fail != nil {
		return nil, f.fail
	}
	switch cmd {
	case "GET":
		v, ok := f.data[args[0].(string)]
		if !ok {
			return nil, nil
		}
		return []byte(v), nil
	case "SET":
		f.data[args[0].(string)] = args[1].(string)
		return "OK", nil
	}
	return nil, errors.New("unsupported command " + cmd)
}

func (c *fakeConn) Send(string, ...any) error { return nil }
func (c *fakeConn) Flush() error              { return nil }
func (c *fakeConn) Receive() (any, error)     { return nil, nil }

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()

	_, ok := c.Get(kindChannel, "1")
	assert.False(t, ok)

	c.Set(kindChannel, "1", "general")
	name, ok := c.Get(kindChannel, "1")
	assert.True(t, ok)
	assert.Equal(t, "general", name)

	_, ok = c.Get(kindGuild, "1")
	assert.False(t, ok, "kinds are separate namespaces")
}

func TestRedisCache(t *testing.T) {
	srv := newFakeRedis()
	c := NewRedisCache(srv, 0)

	_, ok := c.Get(kindGuild, "42")
	assert.False(t, ok)

	c.Set(kindGuild, "42", "Test Guild")
	assert.Equal(t, "Test Guild", srv.data["discordcal:guild:42"])

	name, ok := c.Get(kindGuild, "42")
	require.True(t, ok)
	assert.Equal(t, "Test Guild", name)
}

func TestRedisCache_TTL(t *testing.T) {
	srv := newFakeRedis()
	NewRedisCache(srv, 10*time.Minute).Set(kindChannel, "7", "events")
	NewRedisCache(srv, 100*time.Millisecond).Set(kindChannel, "8", "misc")

	require.Len(t, srv.commands, 2)
	assert.Equal(t, []any{"SET", "discordcal:channel:7", "events", "EX", int64(600)}, srv.commands[0])
	assert.Equal(t, []any{"SET", "discordcal:channel:8", "misc", "EX", int64(1)}, srv.commands[1])
}

func TestRedisCache_ErrorsAreMisses(t *testing.T) {
	srv := newFakeRedis()
	srv.fail = errors.New("connection refused")
	c := NewRedisCache(srv, 0)

	assert.NotPanics(t, func() { c.Set(kindGuild, "1", "x") })
	_, ok := c.Get(kindGuild, "1")
	assert.False(t, ok)
}
