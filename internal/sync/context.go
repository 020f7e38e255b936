package sync

import (
	"errors"
	"reflect"
)

// Context is the workflow-side counterpart of context.Context. It carries values and a
// cancellation state, but no deadline and no Done channel: code running in a coroutine
// observes cancellation by checking Err after it is resumed.
type Context interface {
	Err() error

	Value(key any) any
}

// Canceled is the error returned by Context.Err when the context is canceled.
//
//lint:ignore ST1012 for compat with "context" package
var Canceled = errors.New("context canceled")

type emptyCtx int

func (*emptyCtx) Err() error {
	return nil
}

func (*emptyCtx) Value(key any) any {
	return nil
}

func (*emptyCtx) String() string {
	return "sync.Background"
}

var background = new(emptyCtx)

// Background returns a non-nil, empty Context. It is never canceled and has no values.
func Background() Context {
	return background
}

// A CancelFunc cancels a context. After the first call, subsequent calls do nothing.
type CancelFunc func()

// WithCancel returns a copy of parent that is canceled when the returned cancel
// function is called or when the parent is canceled, whichever happens first.
func WithCancel(parent Context) (Context, CancelFunc) {
	if parent == nil {
		panic("cannot create context from nil parent")
	}

	c := &cancelCtx{Context: parent}
	return c, func() { c.cancel(Canceled) }
}

type cancelCtx struct {
	Context

	err error
}

func (c *cancelCtx) Err() error {
	if c.err != nil {
		return c.err
	}

	return c.Context.Err()
}

func (c *cancelCtx) cancel(err error) {
	if c.err != nil {
		return
	}

	c.err = err
}

// WithValue returns a copy of parent in which the value associated with key is val.
func WithValue(parent Context, key, val any) Context {
	if parent == nil {
		panic("cannot create context from nil parent")
	}
	if key == nil {
		panic("nil key")
	}
	if !reflect.TypeOf(key).Comparable() {
		panic("key is not comparable")
	}

	return &valueCtx{parent, key, val}
}

type valueCtx struct {
	Context
	key, val any
}

func (c *valueCtx) Value(key any) any {
	if c.key == key {
		return c.val
	}

	return c.Context.Value(key)
}
