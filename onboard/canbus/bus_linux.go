package canbus

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

const readPoll = 100 * time.Millisecond

// CANBus is a raw SocketCAN interface.
type CANBus struct {
	*listeners

	fd   int
	tx   chan []byte
	open *atomic.Bool
	wg   sync.WaitGroup
	txMu sync.RWMutex // held while sending on tx
}

func NewCANBus(ifname string) (*CANBus, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, errors.Wrapf(err, "looking up can interface %s", ifname)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, errors.Wrap(err, "opening can socket")
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_RECV_OWN_MSGS, 0); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "configuring can socket")
	}
	// reads wake up periodically so Close does not hang on a quiet bus
	readTimeout := unix.NsecToTimeval(int64(readPoll))
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &readTimeout); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "configuring can socket")
	}

	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "binding can socket to %s", ifname)
	}

	bus := &CANBus{
		listeners: newListeners(ifname),
		fd:        fd,
		tx:        make(chan []byte, 16),
		open:      atomic.NewBool(true),
	}

	bus.wg.Add(2)
	go bus.writer()
	go bus.reader()

	return bus, nil
}

func (c *CANBus) SendMsg(msg CANMsg) error {
	raw, err := msg.Encode()
	if err != nil {
		return err
	}

	c.txMu.RLock()
	defer c.txMu.RUnlock()
	if !c.open.Load() {
		return ErrBusClosed
	}
	c.tx <- raw
	return nil
}

func (c *CANBus) Close() error {
	c.txMu.Lock()
	if !c.open.CAS(true, false) {
		c.txMu.Unlock()
		return nil
	}
	close(c.tx)
	c.txMu.Unlock()

	c.wg.Wait()
	return unix.Close(c.fd)
}

func (c *CANBus) writer() {
	defer c.wg.Done()
	for raw := range c.tx {
		if _, err := unix.Write(c.fd, raw); err != nil {
			log.WithError(err).WithField("bus", c.name).Warn("can write failed")
		}
	}
}

func (c *CANBus) reader() {
	defer c.wg.Done()

	raw := make([]byte, FrameSize)
	for c.open.Load() {
		n, err := unix.Read(c.fd, raw)
		if err != nil {
			if err != unix.EAGAIN && err != unix.EINTR {
				log.WithError(err).WithField("bus", c.name).Warn("can read failed")
			}
			continue
		}

		msg, ok, err := Decode(raw[:n])
		if err != nil || !ok {
			continue
		}
		c.dispatch(msg)
	}
}
