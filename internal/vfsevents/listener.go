package vfsevents

import (
	"fmt"
	"strings"
	"time"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"github.com/pkg/errors"
)

const (
	familyName    = "vfsmonitor"
	multicastName = "vfsmonitor_de"
	maxPathLen    = 4096
)

// Attribute IDs, taken verbatim from the original vfsmonitor netlink
// family's VFSMONITOR_A_* enum.
const (
	attrUnspec = iota
	attrAct
	attrCookie
	attrMajor
	attrMinor
	attrPath
)

// Listener subscribes to the vfsmonitor family's multicast group and
// decodes each message's fixed attribute schema.
type Listener struct {
	conn *genetlink.Conn
}

// NewListener dials generic netlink, resolves the vfsmonitor family, and
// joins its dentry-event multicast group.
func NewListener() (*Listener, error) {
	conn, err := genetlink.Dial(nil)
	if err != nil {
		return nil, errors.Wrap(err, "vfsevents: dial genetlink")
	}

	family, err := conn.GetFamily(familyName)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "vfsevents: resolve family %q", familyName)
	}

	groupID, err := resolveGroup(family, multicastName)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := conn.JoinGroup(groupID); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "vfsevents: join group %q", multicastName)
	}

	return &Listener{conn: conn}, nil
}

func resolveGroup(family genetlink.Family, name string) (uint32, error) {
	for _, g := range family.Groups {
		if g.Name == name {
			return g.ID, nil
		}
	}
	return 0, fmt.Errorf("vfsevents: multicast group %q not found in family %q", name, family.Name)
}

// Close leaves the multicast group and releases the netlink socket.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// Run decodes and delivers RawEvents to out until stop is closed or an
// unrecoverable read error occurs. Run polls with a bounded read
// deadline so it notices stop promptly without a dedicated epoll/eventfd
// pair — the Conn's deadline semantics are this package's equivalent of
// internal/childloop's eventfd-driven epoll_wait, chosen because genetlink.Conn
// already exposes net.Conn-style deadlines.
func (l *Listener) Run(stop <-chan struct{}, out chan<- RawEvent) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if err := l.conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond)); err != nil {
			return errors.Wrap(err, "vfsevents: set read deadline")
		}

		msgs, _, err := l.conn.Receive()
		if isTimeout(err) {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "vfsevents: receive")
		}

		for _, msg := range msgs {
			ev, err := decode(msg)
			if err != nil {
				logger.Warnf("decode vfsmonitor message: %s", err)
				continue
			}
			select {
			case out <- ev:
			case <-stop:
				return nil
			}
		}
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

// decode parses one generic-netlink message's attributes against the
// fixed vfsmonitor schema: ACT(u8), COOKIE(u32), MAJOR(u16), MINOR(u8),
// PATH (nul-terminated utf8, maxlen 4096). All five are mandatory; a
// message missing any is rejected.
func decode(msg genetlink.Message) (RawEvent, error) {
	ad, err := netlink.NewAttributeDecoder(msg.Data)
	if err != nil {
		return RawEvent{}, errors.Wrap(err, "new attribute decoder")
	}

	var (
		ev            RawEvent
		sawAct        bool
		sawCookie     bool
		sawMajor      bool
		sawMinor      bool
		sawPath       bool
		overlongReset bool
	)

	for ad.Next() {
		switch ad.Type() {
		case attrAct:
			ev.Act = Action(ad.Uint8())
			sawAct = true
		case attrCookie:
			ev.Cookie = ad.Uint32()
			sawCookie = true
		case attrMajor:
			ev.Major = ad.Uint16()
			sawMajor = true
		case attrMinor:
			ev.Minor = ad.Uint8()
			sawMinor = true
		case attrPath:
			path := strings.TrimRight(ad.String(), "\x00")
			if len(path) > maxPathLen {
				path = path[:maxPathLen]
				overlongReset = true
			}
			ev.Path = path
			sawPath = true
		}
	}
	if err := ad.Err(); err != nil {
		return RawEvent{}, errors.Wrap(err, "decode attributes")
	}

	if !sawAct || !sawCookie || !sawMajor || !sawMinor || !sawPath {
		return RawEvent{}, fmt.Errorf("vfsevents: message missing mandatory attribute")
	}
	if overlongReset {
		logger.Warnf("vfsevents: path attribute exceeded %d bytes, truncated", maxPathLen)
	}

	return ev, nil
}
