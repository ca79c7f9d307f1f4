//go:build linux

package ipc

import (
	"net"

	"golang.org/x/sys/unix"
)

// PeerCred identifies the process on the other end of a connection.
type PeerCred struct {
	PID int32
	UID uint32
	GID uint32
}

func peerCredentials(c net.Conn) (PeerCred, bool) {
	uc, ok := c.(*net.UnixConn)
	if !ok {
		return PeerCred{}, false
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return PeerCred{}, false
	}
	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil || credErr != nil {
		return PeerCred{}, false
	}
	return PeerCred{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid}, true
}
