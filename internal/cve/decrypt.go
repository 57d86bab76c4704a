package cve

import (
	"context"
	"fmt"
)

// Decryption is the asynchronous result of a decryption request.
type Decryption struct {
	Handle    Handle
	Plaintext uint64
	Err       error
}

// RequestDecryption checks that requester holds a user grant on h and starts
// the decryption. The result is delivered on the returned channel, never in
// the calling step.
func (e *Engine) RequestDecryption(h Handle, requester string) (<-chan Decryption, error) {
	e.mu.RLock()
	ct, ok := e.store[h]
	allowed := e.acl.userAllowed(h, requester)
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %q may not decrypt %s", ErrPermissionDenied, requester, h)
	}

	out := make(chan Decryption, 1)
	go func() {
		defer close(out)
		m, err := e.dlog().solve(e.key.decryptPoint(ct))
		e.log.Debug().Str("handle", h.String()).Str("requester", requester).Err(err).Msg("decryption served")
		out <- Decryption{Handle: h, Plaintext: m, Err: err}
	}()
	return out, nil
}

// Decrypt requests a decryption and waits for it or for ctx.
func (e *Engine) Decrypt(ctx context.Context, h Handle, requester string) (uint64, error) {
	ch, err := e.RequestDecryption(h, requester)
	if err != nil {
		return 0, err
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case d := <-ch:
		return d.Plaintext, d.Err
	}
}
