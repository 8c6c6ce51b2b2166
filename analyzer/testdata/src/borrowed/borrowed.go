package borrowed

type conn struct{}

func (*conn) Close() error { return nil }

type pool struct{ idle []*conn }

//closelint:borrowed
func (p *pool) Get() *conn {
	return p.idle[len(p.idle)-1]
}

var pooled = &conn{}

//closelint:factory
func dial(addr string) *conn {
	return pooled
}

func use(p *pool) {
	c := p.Get()
	c.Close() // want `close-injected: c is closed here but it is a borrowed value owned elsewhere`
}

func connect() {
	dial("localhost") // want `discarded-creation: the resource created by dial\("localhost"\) is discarded and never closed`
}
