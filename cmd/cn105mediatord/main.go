// Command cn105mediatord is the daemon entrypoint: it wires a host-serial
// HVAC UART and a host-serial thermostat UART into a Controller driven by
// a single EventManager, exposes Prometheus counters over HTTP, and runs
// until an interrupt or terminate signal arrives.
package main

import (
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/op/go-logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/urfave/cli/v2"

	"github.com/oxplot/cn105mediator/controller"
	"github.com/oxplot/cn105mediator/eventloop"
	"github.com/oxplot/cn105mediator/packetlog"
	"github.com/oxplot/cn105mediator/serialhal"
	"github.com/oxplot/cn105mediator/serialhal/host"
)

var stderrFormat = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{shortfunc} ▶ %{level:.4s}%{color:reset} %{message}`,
)

// setupLogging installs one formatter-backed backend at a module-wide
// level, read from --log-level.
func setupLogging(level string) error {
	lvl, err := logging.LogLevel(level)
	if err != nil {
		return fmt.Errorf("cn105mediatord: bad log level %q: %w", level, err)
	}
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatted := logging.NewBackendFormatter(backend, stderrFormat)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(lvl, "")
	logging.SetBackend(leveled)
	return nil
}

func run(c *cli.Context) error {
	if err := setupLogging(c.String("log-level")); err != nil {
		return err
	}
	runID := xid.New()
	stdlog.Printf("cn105mediatord starting, run=%s", runID)

	hvacUART, err := host.Open(c.String("hvac-device"), serialhal.DefaultConfig)
	if err != nil {
		return fmt.Errorf("cn105mediatord: open hvac device: %w", err)
	}
	defer hvacUART.Close()

	thermostatUART, err := host.Open(c.String("thermostat-device"), serialhal.DefaultConfig)
	if err != nil {
		return fmt.Errorf("cn105mediatord: open thermostat device: %w", err)
	}
	defer thermostatUART.Close()

	var led *host.StatusLED
	if pin := c.String("status-led"); pin != "" {
		led, err = host.OpenStatusLED(pin)
		if err != nil {
			stdlog.Printf("cn105mediatord: status LED unavailable: %v", err)
			led = nil
		}
	}

	reg := prometheus.NewRegistry()
	em := eventloop.New()
	logger := packetlog.New(reg)

	stopLog := make(chan struct{})
	go logger.Run(stopLog, func(e packetlog.Entry) {
		stdlog.Printf("run=%s id=%s tag=%s bytes=%x", runID, e.ID, e.Tag, e.Bytes)
	})
	defer close(stopLog)

	ctrl := controller.New(em, hvacUART, thermostatUART, logger, reg)
	ctrl.SetPassthru(c.Bool("passthru"))
	ctrl.Start()

	if addr := c.String("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				stdlog.Printf("cn105mediatord: metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	go em.Loop()
	defer em.Quit()

	if led != nil {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		go func() {
			for range ticker.C {
				led.Set(ctrl.IsPassthru())
			}
		}()
	}

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, os.Interrupt, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM)
	sig := <-stopSignal
	stdlog.Printf("cn105mediatord: caught %v, shutting down", sig)
	return nil
}

func main() {
	stdlog.SetFlags(0)
	app := &cli.App{
		Name:  "cn105mediatord",
		Usage: "mediate a CN105 link between a Mitsubishi indoor unit and its thermostat",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "hvac-device",
				Usage:   "serial device connected to the indoor unit's CN105 header",
				Value:   "/dev/ttyUSB0",
				EnvVars: []string{"CN105_HVAC_DEVICE"},
			},
			&cli.StringFlag{
				Name:    "thermostat-device",
				Usage:   "serial device connected to the thermostat's CN105 header",
				Value:   "/dev/ttyUSB1",
				EnvVars: []string{"CN105_THERMOSTAT_DEVICE"},
			},
			&cli.StringFlag{
				Name:    "status-led",
				Usage:   "optional periph.io GPIO pin name to reflect passthru state",
				EnvVars: []string{"CN105_STATUS_LED"},
			},
			&cli.BoolFlag{
				Name:    "passthru",
				Usage:   "start in passthru mode (forward bytes unmodified instead of mediating)",
				EnvVars: []string{"CN105_PASSTHRU"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "address to serve Prometheus metrics on (empty disables)",
				Value:   ":9105",
				EnvVars: []string{"CN105_METRICS_ADDR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "CRITICAL, ERROR, WARNING, NOTICE, INFO or DEBUG",
				Value:   "INFO",
				EnvVars: []string{"CN105_LOG_LEVEL"},
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		stdlog.Fatal(err)
	}
}
