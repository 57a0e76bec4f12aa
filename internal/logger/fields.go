package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
//
// These track the per-operation log line schema from the log format spec:
// {timestamp, client_pid, op, pathname, bytes_in, bytes_out, code, duration_us},
// plus session/connection and eviction bookkeeping fields used by the store
// and server packages.
const (
	// ========================================================================
	// Session & Connection
	// ========================================================================
	KeySessionID = "session_id" // server-assigned connection identity (UUID)
	KeyClientPID = "client_pid" // client-declared pid (advisory, not authoritative)

	// ========================================================================
	// Operation
	// ========================================================================
	KeyOp          = "op"          // command name: OPEN, CLOSE, READ, WRITE, ...
	KeyPathname    = "pathname"    // file identifier the operation targets
	KeyCode        = "code"        // response code
	KeyBytesIn     = "bytes_in"    // bytes received as part of the request
	KeyBytesOut    = "bytes_out"   // bytes returned to the client
	KeyDurationUs  = "duration_us" // operation duration in microseconds
	KeyFlags       = "flags"       // open flags (O_CREATE, O_LOCK)
	KeyN           = "n"           // count argument to readN

	// ========================================================================
	// Store & Eviction
	// ========================================================================
	KeyFilesInUse = "files_in_use"
	KeyBytesInUse = "bytes_in_use"
	KeyMaxFiles   = "max_files"
	KeyMaxBytes   = "max_bytes"
	KeyEvicted    = "evicted"
	KeyVictim     = "victim"

	// ========================================================================
	// Errors
	// ========================================================================
	KeyError = "error"
)

// SessionID returns a slog.Attr for the connection identity.
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// ClientPID returns a slog.Attr for the client-declared pid.
func ClientPID(pid int32) slog.Attr {
	return slog.Int(KeyClientPID, int(pid))
}

// Op returns a slog.Attr for the command name.
func Op(name string) slog.Attr {
	return slog.String(KeyOp, name)
}

// Pathname returns a slog.Attr for the file identifier.
func Pathname(p string) slog.Attr {
	return slog.String(KeyPathname, p)
}

// Code returns a slog.Attr for a response code.
func Code(code int) slog.Attr {
	return slog.Int(KeyCode, code)
}

// BytesIn returns a slog.Attr for bytes received.
func BytesIn(n int) slog.Attr {
	return slog.Int(KeyBytesIn, n)
}

// BytesOut returns a slog.Attr for bytes returned.
func BytesOut(n int) slog.Attr {
	return slog.Int(KeyBytesOut, n)
}

// DurationUs returns a slog.Attr for operation duration in microseconds.
func DurationUs(us int64) slog.Attr {
	return slog.Int64(KeyDurationUs, us)
}

// Evicted returns a slog.Attr for the number of victims evicted.
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
