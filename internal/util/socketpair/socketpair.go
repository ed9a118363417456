// Package socketpair provides connected in-process stream sockets for tests.
package socketpair

import (
	"net"
	"os"

	"golang.org/x/sys/unix"
)

type fileConn struct {
	net.Conn // net.FileConn
	f        *os.File
}

func (c fileConn) Close() error {
	if err := c.Conn.Close(); err != nil {
		return err
	}
	return c.f.Close()
}

// SocketPair returns both ends of a unix stream socket pair.
// Unlike net.Pipe, writes are buffered by the kernel, so a writer does not
// block until the peer reads.
func SocketPair() (a, b net.Conn, err error) {
	sockpair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, err
	}
	toConn := func(fd int, name string) (net.Conn, error) {
		f := os.NewFile(uintptr(fd), name)
		if f == nil {
			panic(fd)
		}
		c, err := net.FileConn(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return fileConn{Conn: c, f: f}, nil
	}
	if a, err = toConn(sockpair[0], "socketpair-a"); err != nil { // shadowing
		unix.Close(sockpair[1])
		return nil, nil, err
	}
	if b, err = toConn(sockpair[1], "socketpair-b"); err != nil { // shadowing
		a.Close()
		return nil, nil, err
	}
	return a, b, nil
}
