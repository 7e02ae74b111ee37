package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStartup(maxAttempts int) *Startup {
	s := NewStartup(ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}), maxAttempts)
	s.backoffUnit = time.Millisecond
	return s
}

func TestStartup_OrderAndStop(t *testing.T) {
	s := newTestStartup(1)

	var events []string
	dep := func(name string, requires ...string) Dependency {
		return Dependency{
			Name:     name,
			Requires: requires,
			StartFn:  func(context.Context) error { events = append(events, "start "+name); return nil },
			StopFn:   func(context.Context) error { events = append(events, "stop "+name); return nil },
		}
	}
	s.AddDependency(dep("server", "graph", "kafka"))
	s.AddDependency(dep("graph"))
	s.AddDependency(dep("kafka"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start graph", "start kafka", "start server"}, events)
	assert.Equal(t, StartupStatusStarted, s.Status("server"))

	events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop server", "stop kafka", "stop graph"}, events)
	assert.Equal(t, StartupStatusStopped, s.Status("graph"))
}

func TestStartup_RetriesFailedDependency(t *testing.T) {
	s := newTestStartup(3)

	graphStarts, failures := 0, 2
	s.AddDependency(Dependency{Name: "graph", StartFn: func(context.Context) error {
		graphStarts++
		if failures > 0 {
			failures--
			return errors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, graphStarts)
}

func TestStartup_GivesUp(t *testing.T) {
	s := newTestStartup(2)
	s.AddDependency(Dependency{Name: "graph", StartFn: func(context.Context) error { return errors.New("connection refused") }})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup failed after 2 attempts")
	assert.Equal(t, StartupStatusFailed, s.Status("graph"))
}

func TestStartup_UnknownAndCyclicDependencies(t *testing.T) {
	s := newTestStartup(1)
	s.AddDependency(Dependency{Name: "server", Requires: []string{"graph"}})
	assert.Error(t, s.Start(context.Background()))

	s = newTestStartup(1)
	s.AddDependency(Dependency{Name: "a", Requires: []string{"b"}})
	s.AddDependency(Dependency{Name: "b", Requires: []string{"a"}})
	assert.Error(t, s.Start(context.Background()))
}
