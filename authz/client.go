package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"netchain/chain"
	ncerr "netchain/internal/errors"
	"netchain/internal/retry"
	"netchain/util"
)

// ErrDenied is returned when the server answers anything but "OK".
var ErrDenied = errors.New("authorization denied")

// maxReply bounds the server's answer.
const maxReply = 64

// Client requests authorization for Name.
type Client struct {
	Processor *chain.Processor
	Name      string

	// Backoff retries the connect step.  Nil means a single attempt.
	Backoff *retry.Backoff
	Logger  *util.Logger
}

// Authorize connects to host:port, sends the name and waits for the
// reply.  It returns nil when access was granted and ErrDenied when it
// was refused.  Cancelling ctx shuts the connection down.
func (cl *Client) Authorize(ctx context.Context, host string, port int) error {
	c, err := cl.connect(ctx, host, port)
	if err != nil {
		return err
	}

	result := make(chan error, 1)
	c.Data = append(c.Data[:0], cl.Name...)
	chain.AsyncWrite(c, func(c *chain.Conn, err error) {
		if err != nil {
			c.Shutdown()
			result <- fmt.Errorf("send name: %w", err)
			return
		}
		chain.AsyncReadAtLeast(c, func(c *chain.Conn, err error) {
			defer c.Shutdown()
			switch {
			case err != nil:
				result <- fmt.Errorf("read reply: %w", err)
			case string(c.Data) != ReplyOK:
				cl.Logger.Verbose("authz: server replied %q", c.Data)
				result <- ErrDenied
			default:
				result <- nil
			}
		}, len(ReplyOK), maxReply)
	})

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		c.Shutdown()
		return ctx.Err()
	}
}

func (cl *Client) connect(ctx context.Context, host string, port int) (*chain.Conn, error) {
	bo := cl.Backoff
	if bo == nil {
		bo = &retry.Backoff{MaxAttempts: 1}
	}
	attemptBo := *bo
	attemptBo.Retryable = ncerr.IsRetryable
	attemptBo.OnRetry = func(attempt int, err error, wait time.Duration) {
		cl.Logger.Verbose("authz: connect attempt %d failed: %v (retrying in %v)",
			attempt, err, wait.Truncate(time.Millisecond))
	}

	var c *chain.Conn
	err := attemptBo.Do(ctx, func(_ int) error {
		conn, err := cl.Processor.CreateConnectionContext(ctx, host, port)
		if err != nil {
			return err
		}
		c = conn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
