package gauge

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/TheCacophonyProject/ups-hat-controller/i2crequest"
	"github.com/TheCacophonyProject/ups-hat-controller/ina219"
	"github.com/TheCacophonyProject/ups-hat-controller/internal/logging"
	"github.com/TheCacophonyProject/ups-hat-controller/socstore"
	"github.com/alexflint/go-arg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var version = "<not set>"
var log = logging.NewLogger("info")

type Args struct {
	Read       *Read       `arg:"subcommand:read"    help:"Read a register."`
	Write      *Write      `arg:"subcommand:write"   help:"Write a register."`
	Find       *subcommand `arg:"subcommand:find"    help:"Check that the INA219 responds."`
	Measure    *subcommand `arg:"subcommand:measure" help:"Calibrate then print voltage, current and power."`
	Status     *subcommand `arg:"subcommand:status"  help:"Print the saved state of charge."`
	Bus        string      `arg:"--bus" help:"i2c bus the INA219 is on"`
	Address    string      `arg:"--address" help:"Address of the INA219, in hex (0xnn)"`
	I2CService bool        `arg:"--i2c-service" help:"Use the i2c dbus service instead of opening the bus"`
	SoCFile    string      `arg:"--soc-file" help:"Memory mapped file holding the SoC"`
	logging.LogArgs
}

type subcommand struct {
}

type Read struct {
	Reg string `arg:"required" help:"The register you want to read from, in hex (0xnn)"`
}

type Write struct {
	Reg string `arg:"required" help:"The register you want to write to, in hex (0xnn)"`
	Val string `arg:"required" help:"The value you want to write, in hex (0xnnnn)"`
}

var defaultArgs = Args{
	Bus:     ina219.DefaultBus,
	Address: fmt.Sprintf("0x%02x", ina219.DefaultAddress),
	SoCFile: socstore.DefaultPath,
}

func procArgs(input []string) (Args, error) {
	args := defaultArgs

	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return args, err
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	log = logging.NewLogger(args.LogLevel)

	log.Infof("Running version: %s", version)

	if args.Status != nil {
		return status(args.SoCFile)
	}

	address, err := hexStringToByte(args.Address)
	if err != nil {
		return err
	}
	if args.Find != nil && args.I2CService {
		return find(address)
	}

	conn, closeConn, err := openConn(args.Bus, address, args.I2CService)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeConn(); err != nil {
			log.Errorf("Failed to close i2c bus: %v", err)
		}
	}()
	g := ina219.New(conn)

	switch {
	case args.Read != nil:
		return read(g, args.Read)
	case args.Write != nil:
		return write(g, args.Write)
	case args.Find != nil:
		return probe(g, address)
	case args.Measure != nil:
		return measure(g)
	}
	return fmt.Errorf("no subcommand given")
}

// openConn opens the bus directly, or returns a dbus connection when
// useService is set.
var openConn = func(bus string, address byte, useService bool) (ina219.Conn, func() error, error) {
	if useService {
		return &i2crequest.Conn{Address: address}, func() error { return nil }, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, nil, err
	}
	return &i2c.Dev{Bus: b, Addr: uint16(address)}, b.Close, nil
}

func find(address byte) error {
	log.Printf("Finding address 0x%X", address)
	found, err := i2crequest.CheckAddress(address, 1000)
	if err != nil {
		log.Errorf("Error checking for device: %v", err)
	}
	if found {
		log.Printf("Found device at address 0x%X", address)
	} else {
		log.Printf("Did not find device at address 0x%X", address)
	}
	return nil
}

// probe reads the config register, which any INA219 answers.
func probe(g *ina219.Gauge, address byte) error {
	log.Printf("Finding address 0x%X", address)
	if _, err := g.ReadRegister(ina219.ConfigReg); err != nil {
		log.Errorf("Error checking for device: %v", err)
		log.Printf("Did not find device at address 0x%X", address)
		return nil
	}
	log.Printf("Found device at address 0x%X", address)
	return nil
}

func read(g *ina219.Gauge, args *Read) error {
	reg, err := hexStringToByte(args.Reg)
	if err != nil {
		return err
	}

	log.Printf("Reading register 0x%X", reg)
	val, err := g.ReadRegister(ina219.Register(reg))
	if err != nil {
		return err
	}
	log.Printf("%s: 0x%04X (%d)", ina219.Register(reg), uint16(val), val)
	return nil
}

func write(g *ina219.Gauge, args *Write) error {
	reg, err := hexStringToByte(args.Reg)
	if err != nil {
		return err
	}
	val, err := hexStringToUint16(args.Val)
	if err != nil {
		return err
	}

	log.Printf("Writing 0x%04X to register 0x%X", val, reg)
	return g.WriteRegister(ina219.Register(reg), val)
}

func measure(g *ina219.Gauge) error {
	if err := g.Calibrate(); err != nil {
		return err
	}
	voltage, err := g.ReadVoltage()
	if err != nil {
		return err
	}
	current, err := g.ReadCurrent()
	if err != nil {
		return err
	}
	power, err := g.ReadPower()
	if err != nil {
		return err
	}
	log.Printf("Voltage: %.3fV, current: %.4fA, power: %.3fW", voltage, current, power)
	return nil
}

func status(path string) error {
	soc, err := socstore.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("No saved SoC in %s", path)
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("SoC: %.3f (%.1f%%)", soc, soc*100)
	return nil
}

func hexStringToByte(hexStr string) (byte, error) {
	if len(hexStr) != 4 {
		return 0, fmt.Errorf("invalid hex string length: %d", len(hexStr))
	}
	if !strings.HasPrefix(hexStr, "0x") {
		return 0, fmt.Errorf("invalid hex string prefix, should be '0x': %s", hexStr)
	}
	val, err := strconv.ParseUint(hexStr[2:], 16, 8) // 16 for base, 8 for bit size
	if err != nil {
		return 0, err
	}
	return byte(val), nil
}

func hexStringToUint16(hexStr string) (uint16, error) {
	if len(hexStr) < 3 || len(hexStr) > 6 {
		return 0, fmt.Errorf("invalid hex string length: %d", len(hexStr))
	}
	if !strings.HasPrefix(hexStr, "0x") {
		return 0, fmt.Errorf("invalid hex string prefix, should be '0x': %s", hexStr)
	}
	val, err := strconv.ParseUint(hexStr[2:], 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(val), nil
}
