package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"boardtest-go/config"
	"boardtest-go/hal/serialport"
	"boardtest-go/probe"
	"boardtest-go/suite"
)

// single runs one probe built from the config's options after mutate has
// applied the command's flags.
func (a *app) single(cmd *cobra.Command, mutate func(o *suite.Options) probe.Probe) error {
	return a.runSuite(cmd, func(o suite.Options) []probe.Probe {
		return []probe.Probe{mutate(&o)}
	})
}

func (a *app) ledCmd() *cobra.Command {
	var (
		names   []string
		mode    string
		on, off time.Duration
	)
	c := &cobra.Command{
		Use:   "led",
		Short: "Blink the on-board LEDs and ask whether they lit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := probe.ParseLEDMode(mode)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			return a.single(cmd, func(o *suite.Options) probe.Probe {
				if f.Changed("names") {
					o.LED.Names = names
				}
				if f.Changed("mode") {
					o.LED.Mode = m
				}
				if f.Changed("on") {
					o.LED.Toggle.On = on
				}
				if f.Changed("off") {
					o.LED.Toggle.Off = off
				}
				return probe.LED{Opts: o.LED}
			})
		},
	}
	c.Flags().StringSliceVar(&names, "names", nil, "LED pin names to try (default: the standard LED names)")
	c.Flags().StringVar(&mode, "mode", "lockstep", "lockstep or cycle")
	c.Flags().DurationVar(&on, "on", 200*time.Millisecond, "High time per blink")
	c.Flags().DurationVar(&off, "off", 200*time.Millisecond, "Low time per blink")
	return c
}

func (a *app) gpioCmd() *cobra.Command {
	var pins []string
	c := &cobra.Command{
		Use:   "gpio",
		Short: "Toggle the numbered A/D pins together and ask whether they toggle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.single(cmd, func(o *suite.Options) probe.Probe {
				if cmd.Flags().Changed("pins") {
					o.GPIO.Pins = pins
				}
				return probe.GPIO{Opts: o.GPIO}
			})
		},
	}
	c.Flags().StringSliceVar(&pins, "pins", nil, "Pins to toggle instead of every A<n>/D<n> pin")
	return c
}

func (a *app) vmonCmd() *cobra.Command {
	var names []string
	c := &cobra.Command{
		Use:     "vmon",
		Aliases: []string{"voltage"},
		Short:   "Sample the voltage monitor inputs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.single(cmd, func(o *suite.Options) probe.Probe {
				if cmd.Flags().Changed("names") {
					o.Voltage.Names = names
				}
				return probe.Voltage{Opts: o.Voltage}
			})
		},
	}
	c.Flags().StringSliceVar(&names, "names", nil, "Analog pin names to sample")
	return c
}

func (a *app) uartCmd() *cobra.Command {
	var (
		tx, rx  string
		baud    uint32
		timeout time.Duration
	)
	c := &cobra.Command{
		Use:   "uart",
		Short: "Send random bytes from TX to RX over a jumper wire",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			return a.single(cmd, func(o *suite.Options) probe.Probe {
				if f.Changed("tx") {
					o.UART.TX = tx
				}
				if f.Changed("rx") {
					o.UART.RX = rx
				}
				if f.Changed("baud") {
					o.UART.Baud = baud
				}
				if f.Changed("timeout") {
					o.UART.ReadTimeout = timeout
				}
				return probe.UART{Opts: o.UART}
			})
		},
	}
	c.Flags().StringVar(&tx, "tx", "TX", "Transmit pin")
	c.Flags().StringVar(&rx, "rx", "RX", "Receive pin")
	c.Flags().Uint32Var(&baud, "baud", 9600, "Baud rate")
	c.Flags().DurationVar(&timeout, "timeout", time.Second, "Receive timeout")
	return c
}

func (a *app) spiCmd() *cobra.Command {
	var (
		mosi, miso, sck, cs string
		hz                  uint32
		mode                uint8
	)
	c := &cobra.Command{
		Use:   "spi",
		Short: "Write and read back a 25AA040A SPI EEPROM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode > 3 {
				return fmt.Errorf("spi mode must be 0..3, got %d", mode)
			}
			f := cmd.Flags()
			return a.single(cmd, func(o *suite.Options) probe.Probe {
				for name, dst := range map[string]*string{"mosi": &o.SPI.MOSI, "miso": &o.SPI.MISO, "sck": &o.SPI.SCK, "cs": &o.SPI.CS} {
					if f.Changed(name) {
						v, _ := f.GetString(name)
						*dst = v
					}
				}
				if f.Changed("hz") {
					o.SPI.Hz = hz
				}
				if f.Changed("mode") {
					o.SPI.Mode = mode
				}
				return probe.SPI{Opts: o.SPI}
			})
		},
	}
	c.Flags().StringVar(&mosi, "mosi", "MOSI", "Controller-out pin")
	c.Flags().StringVar(&miso, "miso", "MISO", "Controller-in pin")
	c.Flags().StringVar(&sck, "sck", "SCK", "Clock pin")
	c.Flags().StringVar(&cs, "cs", "D2", "Chip-select pin")
	c.Flags().Uint32Var(&hz, "hz", 100000, "Bus clock")
	c.Flags().Uint8Var(&mode, "mode", 0, "SPI mode 0..3")
	return c
}

func (a *app) i2cCmd() *cobra.Command {
	var (
		sda, scl string
		addr     uint16
	)
	c := &cobra.Command{
		Use:   "i2c",
		Short: "Write and read back an AT24 I2C EEPROM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			return a.single(cmd, func(o *suite.Options) probe.Probe {
				if f.Changed("sda") {
					o.I2C.SDA = sda
				}
				if f.Changed("scl") {
					o.I2C.SCL = scl
				}
				if f.Changed("addr") {
					o.I2C.Addr = addr
				}
				return probe.I2C{Opts: o.I2C}
			})
		},
	}
	c.Flags().StringVar(&sda, "sda", "SDA", "Data pin")
	c.Flags().StringVar(&scl, "scl", "SCL", "Clock pin")
	c.Flags().Uint16Var(&addr, "addr", 0x50, "EEPROM 7-bit address")
	return c
}

func (a *app) sdcdCmd() *cobra.Command {
	var pin string
	c := &cobra.Command{
		Use:   "sdcd",
		Short: "Check the SD card-detect switch on insert and remove",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.single(cmd, func(o *suite.Options) probe.Probe {
				if cmd.Flags().Changed("pin") {
					o.SDCD.Pin = pin
				}
				return probe.SDCD{Opts: o.SDCD}
			})
		},
	}
	c.Flags().StringVar(&pin, "pin", "SD_CD", "Card-detect pin")
	return c
}

func (a *app) pinsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pins",
		Short: "List the board's pins, lines and capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			d, err := f.Directory()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "BOARD\t%s\t(%d pins)\n", d.Name(), d.Len())
			fmt.Fprintln(w, "NAME\tLINE\tCAPS")
			for _, p := range d.Pins() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.Line, p.Caps)
			}
			return w.Flush()
		},
	}
}

func (a *app) portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List host serial ports for the UART test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serialport.List()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(ports, "\n"))
			return nil
		},
	}
}

// configCmd prints the effective configuration with the pin list spelled
// out, as a starting point for a custom board file.
func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			d, err := f.Directory()
			if err != nil {
				return err
			}
			out := *f
			out.Board = d.Name()
			out.Pins = config.FromDirectory(d)
			b, err := out.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}
