package core

import (
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/lordnynex/qless-core/internal/config"
	"github.com/lordnynex/qless-core/internal/events"
	"github.com/lordnynex/qless-core/internal/logging"
	"github.com/lordnynex/qless-core/internal/store"
)

// newTestEngine returns an Engine backed by an in-process miniredis server, along
// with a cleanup func the caller should defer.
func newTestEngine(t *testing.T) (*Engine, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.New(rdb)
	bus := events.New(s)
	cfg := config.New()
	log := logging.New(&logging.Config{Level: logging.LevelError, Format: "json", Output: io.Discard})

	e := New(s, bus, cfg, log, "ql")
	return e, func() {
		rdb.Close()
		mr.Close()
	}
}
