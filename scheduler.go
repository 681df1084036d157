package riptide

// Scheduler names the execution context outbound write loops run on.
type Scheduler interface {
	Schedule(task func())
}

// Immediate runs tasks inline on the calling goroutine. It is the default
// outbound scheduler: the common case stays allocation-free and writes run
// on whichever goroutine owns the connection's I/O.
var Immediate Scheduler = immediateScheduler{}

// Spawn runs each task on a fresh goroutine.
var Spawn Scheduler = spawnScheduler{}

type immediateScheduler struct{}

func (immediateScheduler) Schedule(task func()) { task() }

type spawnScheduler struct{}

func (spawnScheduler) Schedule(task func()) { go task() }
