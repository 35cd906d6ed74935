package log

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrorLogSink fans out build-phase stderr through a single shared
// SOCK_DGRAM socketpair and attributes each datagram to the worker that
// produced it via peer credentials read off the socket, rather than
// trusting whatever goroutine-local io.Writer a worker happens to be
// holding at the time.
//
// Mirrors dsynth's dexec_open()/dexec_logerr_thread error channel
// (usr.bin/dsynth/subs.c): one shared AF_UNIX/SOCK_DGRAM pair created
// lazily, credential-passing enabled on the read end, every child's stderr
// dup2'd onto the write end, and a single reader goroutine demultiplexing
// by the sender's real kernel PID rather than by whichever worker last
// claimed to be running it.
type ErrorLogSink struct {
	readFd    int
	writeFile *os.File

	mu    sync.Mutex
	byPID map[int]*PackageLogger

	closeOnce sync.Once
	done      chan struct{}
}

// NewErrorLogSink creates the shared socketpair, enables peer-credential
// passing on the read end where the platform supports it, and starts the
// demultiplexing goroutine. Call Close once the build run finishes.
func NewErrorLogSink() (*ErrorLogSink, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, fmt.Errorf("creating error log socketpair: %w", err)
	}

	if err := enablePeerCredentials(fds[0]); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, fmt.Errorf("enabling peer credentials: %w", err)
	}

	sink := &ErrorLogSink{
		readFd:    fds[0],
		writeFile: os.NewFile(uintptr(fds[1]), "errorlog-write"),
		byPID:     make(map[int]*PackageLogger),
		done:      make(chan struct{}),
	}

	go sink.run()
	return sink, nil
}

// Register associates a child PID with the logger that should receive its
// attributed stderr lines. Call immediately after starting the child (via
// environment.ExecCommand.OnStart), before it has a chance to write, to
// avoid a race against its first line.
func (s *ErrorLogSink) Register(pid int, logger *PackageLogger) {
	s.mu.Lock()
	s.byPID[pid] = logger
	s.mu.Unlock()
}

// Unregister removes a PID's attribution once its process has exited.
func (s *ErrorLogSink) Unregister(pid int) {
	s.mu.Lock()
	delete(s.byPID, pid)
	s.mu.Unlock()
}

// WriterFile returns the write end of the socketpair for use as a child
// process's Stderr. Because it is handed to exec.Cmd as a real *os.File
// (not a Go-side io.Writer), the kernel dup2's the fd directly into the
// child, so peer credentials reflect the child's own PID rather than this
// process's.
func (s *ErrorLogSink) WriterFile() *os.File {
	return s.writeFile
}

// run reads datagrams off the shared socket and routes each one to the
// logger registered for its sender's PID, dropping anything from an
// unregistered (or unattributable) sender.
func (s *ErrorLogSink) run() {
	buf := make([]byte, 4096)
	oob := make([]byte, 256)

	for {
		n, oobn, _, _, err := unix.Recvmsg(s.readFd, buf, oob, 0)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}
		if n <= 0 {
			continue
		}

		pid := extractSenderPID(oob[:oobn])

		s.mu.Lock()
		logger := s.byPID[pid]
		s.mu.Unlock()

		if logger != nil {
			line := make([]byte, n)
			copy(line, buf[:n])
			logger.Write(line)
		}
	}
}

// Close shuts down the demultiplexing goroutine and both ends of the
// socketpair. Safe to call once.
func (s *ErrorLogSink) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	unix.Close(s.readFd)
	return s.writeFile.Close()
}
