// Package script runs user Lua scripts for run_script actions.
//
// gopher-lua's LState is not goroutine-safe, so the engine owns its state
// on a single worker goroutine and serializes script runs through a
// queue. Scripts get a restricted library set: no io, no os.execute, no
// module loading from disk.
package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// ErrEngineClosed is returned when using a closed engine.
var ErrEngineClosed = errors.New("script: engine closed")

// ErrQueueFull is returned when the run queue is saturated.
var ErrQueueFull = errors.New("script: queue full")

type call struct {
	fn     func(L *lua.LState) error
	result chan error
}

// Engine executes Lua scripts on a dedicated goroutine.
type Engine struct {
	queue     chan *call
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewEngine creates and starts an engine. queueSize bounds how many
// script runs may wait; zero or negative picks a default.
func NewEngine(queueSize int) *Engine {
	if queueSize <= 0 {
		queueSize = 16
	}
	e := &Engine{
		queue: make(chan *call, queueSize),
		done:  make(chan struct{}),
	}
	e.wg.Add(1)
	go e.loop()
	return e
}

// loop owns the LState for the engine's lifetime.
func (e *Engine) loop() {
	defer e.wg.Done()

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	openSafeLibs(L)

	for {
		select {
		case <-e.done:
			e.drain()
			return
		case c := <-e.queue:
			c.result <- runCall(L, c.fn)
			close(c.result)
		}
	}
}

// runCall executes one operation with panic recovery so a broken script
// cannot take the engine down.
func runCall(L *lua.LState, fn func(*lua.LState) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = v
			default:
				err = fmt.Errorf("script: panic: %v", v)
			}
		}
	}()
	return fn(L)
}

func (e *Engine) drain() {
	for {
		select {
		case c := <-e.queue:
			c.result <- ErrEngineClosed
			close(c.result)
		default:
			return
		}
	}
}

// openSafeLibs loads the library subset scripts may use.
func openSafeLibs(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	// Module loading from disk stays off.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// RunFile executes a Lua script file with the given arguments exposed as
// the global arg table (arg[1..n], arg[0] = script path). The call blocks
// until the script finishes or ctx is cancelled; a cancelled caller stops
// waiting but the script itself runs to completion.
func (e *Engine) RunFile(ctx context.Context, path string, args []string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	c := &call{
		fn: func(L *lua.LState) error {
			argTable := L.NewTable()
			argTable.RawSetInt(0, lua.LString(path))
			for i, a := range args {
				argTable.RawSetInt(i+1, lua.LString(a))
			}
			L.SetGlobal("arg", argTable)
			defer L.SetGlobal("arg", lua.LNil)

			if err := L.DoFile(path); err != nil {
				return fmt.Errorf("script: %s: %w", path, err)
			}
			return nil
		},
		result: make(chan error, 1),
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineClosed
	case e.queue <- c:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-c.result:
		if !ok {
			return ErrEngineClosed
		}
		return err
	}
}

// Close stops the engine. Queued runs fail with ErrEngineClosed.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})
	e.wg.Wait()
}
