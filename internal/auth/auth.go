// Package auth implements the authentication handshake: a protocol-version
// check followed by a credential check, producing an opaque service handle
// a client or worker presents on later calls (this platform has no
// per-call authorization beyond the handshake itself).
package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

// ProtocolVersionID is the fixed 128-bit constant every client and worker
// must present verbatim; a mismatch is a terminal ProtocolVersion error,
// never retried by the Reconnecting Service Proxy.
var ProtocolVersionID = [16]byte{
	0x6a, 0x64, 0x63, 0x70, 0x2d, 0x67, 0x6f, 0x00,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00,
}

// ErrProtocolVersion is returned when a caller's protocol version id does
// not match ProtocolVersionID.
var ErrProtocolVersion = errors.New("auth: protocol version mismatch")

// ErrInvalidCredentials is returned when user/password don't match a
// configured account.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Authenticator validates a handshake and mints opaque service handles.
type Authenticator interface {
	Authenticate(ctx context.Context, user, password string, protocolVersionID []byte) (serviceHandle string, err error)
}

// StaticAuthenticator checks credentials against a fixed, in-memory account
// table — config.go loads this table from the server's YAML configuration.
type StaticAuthenticator struct {
	mu       sync.Mutex
	accounts map[string]string
}

// NewStaticAuthenticator creates an Authenticator backed by accounts
// (user -> password). A nil or empty map accepts no one.
func NewStaticAuthenticator(accounts map[string]string) *StaticAuthenticator {
	cp := make(map[string]string, len(accounts))
	for u, p := range accounts {
		cp[u] = p
	}
	return &StaticAuthenticator{accounts: cp}
}

func (a *StaticAuthenticator) Authenticate(ctx context.Context, user, password string, protocolVersionID []byte) (string, error) {
	if !bytes.Equal(protocolVersionID, ProtocolVersionID[:]) {
		return "", ErrProtocolVersion
	}
	a.mu.Lock()
	want, ok := a.accounts[user]
	a.mu.Unlock()
	if !ok || want != password {
		return "", ErrInvalidCredentials
	}
	return newServiceHandle(), nil
}

func newServiceHandle() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("auth: failed to generate service handle: %v", err))
	}
	return hex.EncodeToString(b[:])
}
