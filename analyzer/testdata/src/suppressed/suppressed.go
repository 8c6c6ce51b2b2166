package suppressed

type conn struct{}

func (*conn) Close() error { return nil }

func newConn() *conn { return &conn{} }

func ignored() {
	newConn() //nolint:discarded-creation
	//closelint:ignore
	newConn()
	newConn() // want `discarded-creation: the resource created by newConn\(\) is discarded and never closed`
}
