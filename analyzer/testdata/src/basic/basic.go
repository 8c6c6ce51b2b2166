package basic

import "os"

type conn struct{}

func (*conn) Close() error { return nil }

func closedEarly() *conn {
	c := &conn{}
	c.Close()
	return c // want `return-disposed: c is closed before it is returned`
}

func deferred(name string) (*os.File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f, nil // want `return-disposed: f is returned but a deferred call closes it`
}

var shared = &conn{}

func stopShared() {
	shared.Close() // want `close-injected: shared is closed here but it is a global value owned elsewhere`
}

func closeParam(c *conn) {
	defer c.Close() // want `close-injected: c is closed here but it is a parameter value owned elsewhere`
}

type holder struct{ c *conn }

func (h *holder) get(fresh bool) *conn { // want `return-cached-and-created: holder.get returns both new and cached resources`
	if fresh {
		return &conn{}
	}
	return h.c
}

func reassign() {
	c := &conn{}
	c = &conn{} // want `close-before-reassign: c is reassigned while it holds an open resource`
	c.Close()
}

func discard(name string) {
	os.Create(name) // want `discarded-creation: the resource created by os.Create\(name\) is discarded and never closed`
}

func owned() error {
	c := &conn{}
	defer c.Close()
	return nil
}
