//go:build linux
// +build linux

package main

import (
	"flag"
	"fmt"
	"sort"

	"github.com/CodedInternet/gripperd/onboard/canbus"
	"github.com/CodedInternet/gripperd/onboard/hardware"
	log "github.com/sirupsen/logrus"
)

func main() {
	ifname := flag.String("bus", "can0", "CAN interface the gripper is attached to")
	addr := flag.Uint("addr", 0x20, "node address of the gripper")
	flag.Parse()

	bus, err := canbus.NewCANBus(*ifname)
	if err != nil {
		log.WithError(err).Fatal("unable to open bus")
	}
	defer bus.Close()

	g, err := hardware.NewGripper("test_gripper", bus, uint32(*addr))
	if err != nil {
		log.WithError(err).Fatal("unable to initialize gripper")
	}
	defer g.Close()

	version := "DEV"
	if v := g.Node().Version; v != nil {
		version = v.String()
	}
	fmt.Printf("Success! Working with %s node version %s\n", g.Type(), version)

	params := g.Parameters()
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-24s %.4f\n", name, params[name])
	}
}
