package soc

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/TheCacophonyProject/ups-hat-controller/internal/battery"
)

var poweroffCommand = []string{"/sbin/poweroff"}

var runCommand = func(command []string) ([]byte, error) {
	return exec.Command(command[0], command[1:]...).CombinedOutput()
}

// finish releases the hardware in the way the outcome needs. The SoC file is
// removed on a clean stop or shutdown. It is kept when the monitor failed or
// the config changed, so the next start can pick it up.
func finish(hw *hardware, outcome battery.Outcome, runErr, cause error, skipShutdown bool) error {
	defer closeLog()
	log.Infof("Battery monitor %s", outcome)
	switch outcome {
	case battery.OutcomeShutdown:
		hw.disposeStore()
		hw.release()
		if skipShutdown {
			log.Info("Skipping system shutdown")
			return nil
		}
		return poweroff()

	case battery.OutcomeStopped:
		if errors.Is(cause, errConfigChanged) {
			hw.closeStore()
		} else {
			hw.disposeStore()
		}
		hw.release()
		return nil

	default:
		hw.closeStore()
		hw.release()
		if runErr == nil {
			runErr = fmt.Errorf("battery monitor %s", outcome)
		}
		err := fmt.Errorf("battery monitor failed: %w", runErr)
		log.Error(err)
		return err
	}
}

func poweroff() error {
	log.Info("Powering off system")
	out, err := runCommand(poweroffCommand)
	if err != nil {
		err = fmt.Errorf("err running '%s', %s, %w", strings.Join(poweroffCommand, " "), string(out), err)
		log.Error(err)
		return err
	}
	return nil
}
