// Command test dumps every node frame seen on a CAN interface and optionally
// pings a node for its firmware version.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/CodedInternet/gripperd/onboard/canbus"
	log "github.com/sirupsen/logrus"
)

func main() {
	ifname := flag.String("bus", "can0", "CAN interface to listen on")
	node := flag.Uint("node", 0x20, "node address to listen to")
	ping := flag.Bool("ping", false, "request the firmware version of the node")
	flag.Parse()

	log.Infof("Opening listener on %s", *ifname)
	bus, err := canbus.NewCANBus(*ifname)
	if err != nil {
		log.WithError(err).Fatal("unable to open bus")
	}
	defer bus.Close()

	rxc := make(chan canbus.CANMsg, 64)
	bus.AddListener(uint32(*node), rxc)

	go func() {
		for msg := range rxc {
			fmt.Printf("%s \t0x%04x \t[%d] \t% x\n", time.Now().Format("15:04:05.000"), msg.Cmd, len(msg.Data), msg.Data)
		}
	}()

	if *ping {
		if err := bus.SendMsg(canbus.CANMsg{ID: uint32(*node), Cmd: 0x03E0}); err != nil {
			log.WithError(err).Error("ping failed")
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
}
