package hardware

import (
	"testing"

	"github.com/CodedInternet/gripperd/onboard/canbus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBaseCommand(t *testing.T) {
	Convey("without sending abort errors", t, func() {
		cmd := &BaseCommand{}
		err := cmd.Abort()
		So(err, ShouldNotBeNil)
	})

	Convey("Given a node", t, func() {
		fw := newTestFirmware()
		node := newControlNode(fw.bus(), testAddr, nil)
		Reset(node.Close)

		Convey("Process tries multiple times before timing out", func() {
			fw.silent = true
			_, err := newCommand(node, CMD_REBOOT, nil).Process()
			So(err, ShouldEqual, ERR_MAX_RETRIES)
			So(fw.receivedCount(CMD_REBOOT), ShouldEqual, CMD_MAX_RETRIES)
		})

		Convey("a command acknowledged on a retry succeeds", func() {
			fw.dropFirst = 2
			resp, err := newCommand(node, CMD_CALIBRATE, []byte{1, 2}).Process()
			So(err, ShouldBeNil)
			So(resp.Node(), ShouldEqual, testAddr)
			So(resp.Data, ShouldResemble, []byte{1, 2})
			So(fw.receivedCount(CMD_CALIBRATE), ShouldEqual, 3)
		})

		Convey("aborting returns correct error and does not send till max", func() {
			fw.silent = true
			cmd := newCommand(node, CMD_REBOOT, nil)
			// need to create the channel manually else Abort will error
			cmd.abort = make(chan struct{})
			So(cmd.Abort(), ShouldBeNil)
			So(cmd.Abort(), ShouldBeNil)

			_, err := cmd.Process()
			So(err, ShouldEqual, ERR_SEND_ABORT)
			So(fw.receivedCount(CMD_REBOOT), ShouldBeLessThan, CMD_MAX_RETRIES)
		})

		Convey("echo commands need the exact data back", func() {
			cmd := newCommand(node, CMD_SET_PARAM, []byte{1, 2, 3})
			So(cmd.accept(canbus.CANMsg{Cmd: CMD_SET_PARAM, Data: []byte{1, 2, 3}}), ShouldBeTrue)
			So(cmd.accept(canbus.CANMsg{Cmd: CMD_SET_PARAM, Data: []byte{1, 2, 4}}), ShouldBeFalse)
		})

		Convey("queries match on their key", func() {
			cmd := newQuery(node, CMD_GET_PARAM, []byte{3})
			So(cmd.accept(canbus.CANMsg{Cmd: CMD_GET_PARAM, Data: []byte{3, 0, 0, 0, 1}}), ShouldBeTrue)
			So(cmd.accept(canbus.CANMsg{Cmd: CMD_GET_PARAM, Data: []byte{4, 0, 0, 0, 1}}), ShouldBeFalse)
			So(cmd.accept(canbus.CANMsg{Cmd: CMD_GET_PARAM}), ShouldBeFalse)
		})
	})
}
