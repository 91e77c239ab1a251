package onboard

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const testYaml = `
version: 1
effectors:
  left:
    bus: can0
    stdaddr: 0x20
    type: electric
    preempt: terminate
  right:
    type: suction
    simulated: true
    sim:
      object: 60
      stiffness: 4
params:
  left_gripper_timeout: 5.0
  left_gripper_goal: 0.005
`

func TestGripperConfigParsing(t *testing.T) {
	Convey("parsing is successful", t, func() {
		config, err := ParseConfig([]byte(testYaml))
		So(err, ShouldBeNil)

		Convey("effectors are set", func() {
			So(config.Sides(), ShouldResemble, []string{"left", "right"})

			left := config.Effectors["left"]
			So(left.Bus, ShouldEqual, "can0")
			So(left.StdAddr, ShouldEqual, 0x20)
			So(left.Preempt, ShouldEqual, "terminate")

			right := config.Effectors["right"]
			So(right.Simulated, ShouldBeTrue)
			So(right.Sim, ShouldResemble, SimConfig{Object: 60, Stiffness: 4})
		})

		Convey("parameter seeds are read", func() {
			So(config.Params, ShouldResemble, map[string]float64{
				"left_gripper_timeout": 5.0,
				"left_gripper_goal":    0.005,
			})
		})
	})

	Convey("invalid configurations are refused", t, func() {
		_, err := ParseConfig([]byte("version: 2\neffectors:\n  left: {bus: can0}\n"))
		So(err, ShouldNotBeNil)

		_, err = ParseConfig([]byte("version: 1\n"))
		So(err, ShouldNotBeNil)

		_, err = ParseConfig([]byte("version: 1\neffectors:\n  left: {bus: can0, type: magnet}\n"))
		So(err, ShouldNotBeNil)

		_, err = ParseConfig([]byte("version: 1\neffectors:\n  left: {bus: can0, preempt: never}\n"))
		So(err, ShouldNotBeNil)

		_, err = ParseConfig([]byte("version: 1\neffectors:\n  left: {type: electric}\n"))
		So(err, ShouldNotBeNil)

		_, err = ParseConfig([]byte("version: [1\n"))
		So(err, ShouldNotBeNil)
	})

	Convey("effector ids are derived from the side", t, func() {
		So(EffectorID("left"), ShouldEqual, "left_gripper")
	})
}
