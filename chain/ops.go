package chain

// AsyncWrite sends all of c.Data.  On success the continuation sees
// c.Data unchanged; on failure it is trimmed to the bytes written.
func AsyncWrite(c *Conn, f Continuation) {
	c.claim()
	done := wrapContinuation(c, f, dirOut)
	if err := c.usable(); err != nil {
		c.proc.fail(done, err)
		return
	}
	c.proc.driver.Write(c.sock.conn, c.Data, done)
}

// AsyncRead resizes c.Data to n and reads exactly n bytes.  End of
// stream before n bytes is reported as an error.
func AsyncRead(c *Conn, f Continuation, n int) {
	c.claim()
	done := wrapContinuation(c, f, dirIn)
	if err := c.usable(); err != nil {
		c.proc.fail(done, err)
		return
	}
	if n < 0 {
		n = 0
	}
	c.resize(n)
	c.proc.driver.ReadFull(c.sock.conn, c.Data, done)
}

// AsyncReadAtLeast resizes c.Data to max and completes once at least
// min bytes arrived.  The continuation sees c.Data holding between min
// and max bytes.  A min above max is lowered to max; with max == 0 the
// read completes at once with an empty buffer.
func AsyncReadAtLeast(c *Conn, f Continuation, min, max int) {
	c.claim()
	done := wrapContinuation(c, f, dirIn)
	if err := c.usable(); err != nil {
		c.proc.fail(done, err)
		return
	}
	if max < 0 {
		max = 0
	}
	if min > max {
		min = max
	}
	c.resize(max)
	var buf []byte
	if max > 0 {
		buf = c.Data
	}
	c.proc.driver.ReadAtLeast(c.sock.conn, buf, min, done)
}
