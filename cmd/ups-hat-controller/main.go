package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/TheCacophonyProject/ups-hat-controller/internal/logging"
	gauge "github.com/TheCacophonyProject/ups-hat-controller/internal/ups-hat-gauge"
	soc "github.com/TheCacophonyProject/ups-hat-controller/internal/ups-hat-soc"
)

var log *logging.Logger

func main() {
	err := runMain()
	if err != nil {
		var setupErr *soc.SetupError
		if errors.As(err, &setupErr) {
			// already in the message log
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

var version = "<not set>"

func runMain() error {
	log = logging.NewLogger("info")
	if len(os.Args) < 2 {
		log.Info("Usage: ups-hat-controller <subcommand> [args]")
		return fmt.Errorf("no subcommand given")
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	var err error
	switch subcommand {
	case "soc":
		err = soc.Run(args, version)
	case "gauge":
		err = gauge.Run(args, version)
	default:
		err = fmt.Errorf("unknown subcommand: %s", subcommand)
	}

	return err
}
