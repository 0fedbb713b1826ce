// Command cn105ctl is a bench diagnostic tool for exercising a Controller
// against a live CN105 link from the command line, one action per
// invocation. It does not speak to a running cn105mediatord over a
// network or IPC channel; it opens the same UART devices directly and
// drives its own short-lived Controller.
package main

import (
	"encoding/json"
	stdlog "log"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/oxplot/cn105mediator/controller"
	"github.com/oxplot/cn105mediator/eventloop"
	"github.com/oxplot/cn105mediator/packetlog"
	"github.com/oxplot/cn105mediator/serialhal"
	"github.com/oxplot/cn105mediator/serialhal/host"
	"github.com/oxplot/cn105mediator/settings"
)

const settleTime = 2 * time.Second

var deviceFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "hvac-device",
		Value:   "/dev/ttyUSB0",
		EnvVars: []string{"CN105_HVAC_DEVICE"},
	},
	&cli.StringFlag{
		Name:    "thermostat-device",
		Value:   "/dev/ttyUSB1",
		EnvVars: []string{"CN105_THERMOSTAT_DEVICE"},
	},
}

// withController opens both UART devices, runs a Controller for settleTime
// so it can complete its Connect handshake and initial queries, invokes
// action, then tears everything down.
func withController(c *cli.Context, action func(*controller.Controller)) error {
	hvacUART, err := host.Open(c.String("hvac-device"), serialhal.DefaultConfig)
	if err != nil {
		return err
	}
	defer hvacUART.Close()

	thermostatUART, err := host.Open(c.String("thermostat-device"), serialhal.DefaultConfig)
	if err != nil {
		return err
	}
	defer thermostatUART.Close()

	em := eventloop.New()
	go em.Loop()
	defer em.Quit()

	logger := packetlog.New(nil)
	stopLog := make(chan struct{})
	go logger.Run(stopLog, func(packetlog.Entry) {})
	defer close(stopLog)

	ctrl := controller.New(em, hvacUART, thermostatUART, logger, nil)
	ctrl.Start()
	time.Sleep(settleTime)

	action(ctrl)
	return nil
}

func printState(ctrl *controller.Controller) {
	out := struct {
		Settings settings.Settings         `json:"settings"`
		Extended settings.ExtendedSettings `json:"extended"`
	}{ctrl.Settings(), ctrl.ExtendedSettings()}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}

func statusCommand(c *cli.Context) error {
	return withController(c, printState)
}

func passthruCommand(c *cli.Context) error {
	on := c.Bool("on")
	return withController(c, func(ctrl *controller.Controller) {
		ctrl.SetPassthru(on)
		stdlog.Printf("passthru = %v", ctrl.IsPassthru())
	})
}

func setTempCommand(c *cli.Context) error {
	degrees, err := strconv.ParseFloat(c.Args().First(), 32)
	if err != nil {
		return err
	}
	return withController(c, func(ctrl *controller.Controller) {
		ctrl.SetTemperature(settings.HalfDegree(degrees).Clamp())
		time.Sleep(settleTime)
		printState(ctrl)
	})
}

func main() {
	stdlog.SetFlags(0)
	app := &cli.App{
		Name:  "cn105ctl",
		Usage: "bench tool: exercise a Controller directly against a CN105 link",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "connect, let queries settle, print cached settings as JSON",
				Flags:  deviceFlags,
				Action: statusCommand,
			},
			{
				Name:   "passthru",
				Usage:  "toggle passthru mode",
				Flags:  append(deviceFlags, &cli.BoolFlag{Name: "on"}),
				Action: passthruCommand,
			},
			{
				Name:      "set-temp",
				Usage:     "push a new target temperature, e.g. `cn105ctl set-temp 21.5`",
				ArgsUsage: "<celsius>",
				Flags:     deviceFlags,
				Action:    setTempCommand,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		stdlog.Fatal(err)
	}
}
