package main

import (
	"sort"
	"strconv"

	"github.com/CodedInternet/gripperd/gripper"
	"github.com/abiosoft/ishell"
	"github.com/pkg/errors"
)

// shellSink discards feedback; the shell waits on the goal's outcome instead.
type shellSink struct{}

func (shellSink) PublishFeedback(gripper.FeedbackSnapshot)    {}
func (shellSink) SetSucceeded(gripper.FeedbackSnapshot)       {}
func (shellSink) SetAborted(gripper.FeedbackSnapshot, string) {}
func (shellSink) SetPreempted(gripper.FeedbackSnapshot)       {}

func effectorNames([]string) []string {
	names := make([]string, 0, len(ENV.Servers))
	for name := range ENV.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func serverArg(c *ishell.Context, usage string, n int) (*gripper.Server, bool) {
	if len(c.Args) < n {
		c.Err(errors.Errorf("usage: %s", usage))
		return nil, false
	}
	server, ok := ENV.Servers[c.Args[0]]
	if !ok {
		c.Err(errors.Errorf("unknown effector %s", c.Args[0]))
		return nil, false
	}
	return server, true
}

func floatArg(c *ishell.Context, i int) (float64, bool) {
	v, err := strconv.ParseFloat(c.Args[i], 64)
	if err != nil {
		c.Err(errors.Wrapf(err, "invalid number %q", c.Args[i]))
		return 0, false
	}
	return v, true
}

func newShell() *ishell.Shell {
	shell := ishell.New()
	shell.Println("Gripper development shell")
	shell.ShowPrompt(true)

	shell.AddCmd(&ishell.Cmd{
		Name: "createsuperuser",
		Help: "createsuperuser <email> <password>",
		Func: func(c *ishell.Context) {
			// disable the '>>>' for cleaner same line input.
			c.ShowPrompt(false)
			defer c.ShowPrompt(true) // yes, revert when done.

			// get email
			var email string
			if len(c.Args) >= 1 {
				email = c.Args[0]
			} else {
				c.Print("Email: ")
				email = c.ReadLine()
			}

			// get password
			var password string
			if len(c.Args) >= 2 {
				password = c.Args[1]
			} else {
				c.Print("Password: ")
				password = c.ReadPassword()
			}

			if _, err := CreateOperator(ENV.DB, email, password, true); err != nil {
				c.Err(err)
				return
			}
			c.Println("Superuser created")
		},
	})

	// Add device specific commands
	shell.AddCmd(&ishell.Cmd{
		Name:      "grip",
		Completer: effectorNames,
		Help:      "grip <name> <position> [max effort]",
		Func: func(c *ishell.Context) {
			server, ok := serverArg(c, "grip <name> <position> [max effort]", 2)
			if !ok {
				return
			}
			goal := gripper.Goal{}
			if goal.Position, ok = floatArg(c, 1); !ok {
				return
			}
			if len(c.Args) >= 3 {
				if goal.MaxEffort, ok = floatArg(c, 2); !ok {
					return
				}
			}

			g, err := server.Submit(goal, shellSink{})
			if err != nil {
				c.Err(err)
				return
			}

			c.ProgressBar().Indeterminate(true)
			c.ProgressBar().Start()
			out := g.Outcome()
			c.ProgressBar().Stop()

			c.Printf("%s: %s position %.3f effort %.1f stalled %v reached %v\n", c.Args[0], out,
				out.Result.Position, out.Result.Effort, out.Result.Stalled, out.Result.ReachedGoal)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "stop",
		Completer: effectorNames,
		Help:      "stop <name>",
		Func: func(c *ishell.Context) {
			server, ok := serverArg(c, "stop <name>", 1)
			if !ok {
				return
			}
			if g, active := server.Active(); active {
				g.Cancel()
			}
			if err := server.Executor().Actuator().Stop(); err != nil {
				c.Err(err)
				return
			}
			c.Printf("Stopped %s\n", c.Args[0])
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "state",
		Completer: effectorNames,
		Help:      "state <name>",
		Func: func(c *ishell.Context) {
			server, ok := serverArg(c, "state <name>", 1)
			if !ok {
				return
			}
			act := server.Executor().Actuator()
			c.Printf("position %.3f force %.3f error %v calibrated %v gripping %v\n",
				act.Position(), act.Force(), act.Error(), act.Calibrated(), act.Gripping())
			c.Printf("%#v\n", server.Executor().Parameters())
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "params",
		Completer: effectorNames,
		Help:      "params <name> [key value]",
		Func: func(c *ishell.Context) {
			server, ok := serverArg(c, "params <name> [key value]", 1)
			if !ok {
				return
			}
			exec := server.Executor()

			if len(c.Args) >= 3 {
				value, ok := floatArg(c, 2)
				if !ok {
					return
				}
				if err := ENV.Params.Set(c.Args[1], value); err != nil {
					c.Err(err)
					return
				}
			}

			payload, err := paramsFor(exec)
			if err != nil {
				c.Err(err)
				return
			}
			for _, key := range gripper.ParamKeys(exec.Name(), exec.Type()) {
				if v, ok := payload.Values[key]; ok {
					c.Printf("%-36s %.4f\n", key, v)
				} else {
					c.Printf("%-36s <missing>\n", key)
				}
			}
		},
	})

	return shell
}
