//go:build dragonfly || freebsd

package log

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// cmsgcred mirrors FreeBSD/DragonFly's struct cmsgcred (<sys/socket.h>),
// delivered as ancillary data with SCM_CREDS once LOCAL_CREDS is set on a
// unix domain socket. Only the leading pid field is used.
//
// Matches usr.bin/dsynth/subs.c's dexec_logerr_thread, which reads
// cred->cmcred_pid out of the same structure to find the logerrinfo entry
// for the sending process.
type cmsgcred struct {
	Pid     int32
	Uid     uint32
	Euid    uint32
	Gid     uint32
	Ngroups int16
	_       [2]byte // alignment padding
	Groups  [16]uint32
}

// enablePeerCredentials turns on LOCAL_CREDS so every datagram received on
// fd carries a leading struct cmsgcred identifying the sender, matching
// dsynth's dexec_open() SO_PASSCRED/SCM_CREDS setup.
func enablePeerCredentials(fd int) error {
	return unix.SetsockoptInt(fd, 0, unix.LOCAL_CREDS, 1)
}

// extractSenderPID parses the SCM_CREDS ancillary message attached to a
// received datagram and returns the sender's PID, or -1 if none was
// attached or the message was truncated.
func extractSenderPID(oob []byte) int {
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return -1
	}

	credSize := int(unsafe.Sizeof(cmsgcred{}))
	for _, cmsg := range cmsgs {
		if cmsg.Header.Type != unix.SCM_CREDS {
			continue
		}
		if len(cmsg.Data) < credSize {
			continue
		}
		cred := (*cmsgcred)(unsafe.Pointer(&cmsg.Data[0]))
		return int(cred.Pid)
	}
	return -1
}
