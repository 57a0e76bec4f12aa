package client

import (
	"github.com/marmos91/cachefsd/internal/wire"
)

// OpenFile opens pathname. create and lock set O_CREATE/O_LOCK; size is the
// file's initial size hint in bytes, or -1 when not applicable.
func (c *Client) OpenFile(pathname string, create, lock bool, size int64) error {
	var flags int32 = -1
	if create || lock {
		flags = 0
		if create {
			flags |= wire.OCreate
		}
		if lock {
			flags |= wire.OLock
		}
	}
	resp, err := c.singleRoundTrip(&wire.Request{
		Cmd:      wire.CmdOpen,
		Pathname: pathname,
		Flags:    flags,
		Size:     size,
	})
	if err != nil {
		return err
	}
	return errFromCode(resp.Code)
}

// CloseFile closes pathname, releasing any lock the caller held on it.
func (c *Client) CloseFile(pathname string) error {
	resp, err := c.singleRoundTrip(&wire.Request{Cmd: wire.CmdClose, Pathname: pathname, Flags: -1, Size: -1})
	if err != nil {
		return err
	}
	return errFromCode(resp.Code)
}

// ReadFile returns the full content of pathname.
func (c *Client) ReadFile(pathname string) ([]byte, error) {
	resp, err := c.singleRoundTrip(&wire.Request{Cmd: wire.CmdRead, Pathname: pathname, Flags: -1, Size: -1})
	if err != nil {
		return nil, err
	}
	if resp.Code != wire.CodeOK {
		return nil, errFromCode(resp.Code)
	}
	return resp.Content, nil
}

// ReadNFiles reads up to n files from the cache, skipping files locked by
// another client; the files need not be open (n <= 0
// means "as many as the server has"), mirroring spec.md §4.2's readNFiles.
func (c *Client) ReadNFiles(n int) (map[string][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(&wire.Request{Cmd: wire.CmdReadN, Flags: -1, Size: int64(n)}); err != nil {
		return nil, err
	}

	out := make(map[string][]byte)
	for {
		resp, err := c.readOne()
		if err != nil {
			return nil, err
		}
		if resp.Code == wire.CodeEnd {
			c.pace()
			return out, nil
		}
		out[resp.Pathname] = resp.Content
	}
}

// WriteFile writes the full content of pathname, replacing what was there.
// It returns any files the server evicted to admit the write.
func (c *Client) WriteFile(pathname string, content []byte) ([]EvictedFile, error) {
	return c.writeOrAppend(wire.CmdWrite, pathname, content)
}

// AppendFile appends content to pathname. It returns any files the server
// evicted to admit the append.
func (c *Client) AppendFile(pathname string, content []byte) ([]EvictedFile, error) {
	return c.writeOrAppend(wire.CmdAppend, pathname, content)
}

func (c *Client) writeOrAppend(cmd wire.Command, pathname string, content []byte) ([]EvictedFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(&wire.Request{Cmd: cmd, Pathname: pathname, Flags: -1, Size: int64(len(content)), Content: content}); err != nil {
		return nil, err
	}

	var evicted []EvictedFile
	for {
		resp, err := c.readOne()
		if err != nil {
			return nil, err
		}
		if resp.Code == wire.CodeEvicted {
			evicted = append(evicted, EvictedFile{Pathname: resp.Pathname, Content: resp.Content})
			continue
		}
		c.pace()
		if resp.Code != wire.CodeOK {
			return evicted, errFromCode(resp.Code)
		}
		return evicted, nil
	}
}

// LockFile acquires an exclusive lock on pathname. A contended lock blocks
// this call until the server delivers the deferred grant (spec.md §4.2's
// suspension model is transparent to the client: the connection simply
// stays read-pending for longer).
func (c *Client) LockFile(pathname string) error {
	resp, err := c.singleRoundTrip(&wire.Request{Cmd: wire.CmdLock, Pathname: pathname, Flags: -1, Size: -1})
	if err != nil {
		return err
	}
	return errFromCode(resp.Code)
}

// UnlockFile releases a lock this client holds on pathname.
func (c *Client) UnlockFile(pathname string) error {
	resp, err := c.singleRoundTrip(&wire.Request{Cmd: wire.CmdUnlock, Pathname: pathname, Flags: -1, Size: -1})
	if err != nil {
		return err
	}
	return errFromCode(resp.Code)
}

// RemoveFile deletes pathname from the cache.
func (c *Client) RemoveFile(pathname string) error {
	resp, err := c.singleRoundTrip(&wire.Request{Cmd: wire.CmdRemove, Pathname: pathname, Flags: -1, Size: -1})
	if err != nil {
		return err
	}
	return errFromCode(resp.Code)
}

// StatFile returns pathname's content size without transferring its
// content, supplemented from the original's find_size(pathname) helper
// (see SPEC_FULL.md §C).
func (c *Client) StatFile(pathname string) (int64, error) {
	resp, err := c.singleRoundTrip(&wire.Request{Cmd: wire.CmdStat, Pathname: pathname, Flags: -1, Size: -1})
	if err != nil {
		return 0, err
	}
	if resp.Code != wire.CodeOK {
		return 0, errFromCode(resp.Code)
	}
	return int64(resp.ContentSize), nil
}
