package storage

import "context"

// Noop is the store used when the process is not running inside the host.
// Writes succeed silently and reads always miss, so callers need no special
// casing; Available reports false for the few that do (the audio coordinator).
type Noop struct{}

func (Noop) Put(context.Context, string, []byte) error { return nil }

func (Noop) Get(context.Context, string) ([]byte, error) { return nil, nil }

func (Noop) Delete(context.Context, string) error { return nil }

func (Noop) Keys(context.Context, string) ([]string, error) { return nil, nil }

func (Noop) Available() bool { return false }

func (Noop) Close() error { return nil }
