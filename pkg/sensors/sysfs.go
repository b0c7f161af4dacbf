package sensors

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/pkg/errors"
)

// FileSensor reads a number exposed by a kernel driver, such as a 1-wire
// w1_slave file ("... t=21375") or an iio in_*_raw attribute.
type FileSensor struct {
	Path  string
	Scale float64
}

func NewFileSensor(path string, scale float64) *FileSensor {
	if scale == 0 {
		scale = 1
	}
	return &FileSensor{Path: filepath.Clean(path), Scale: scale}
}

func (f *FileSensor) Read() (float64, error) {
	content, err := os.ReadFile(f.Path)
	if err != nil {
		return 0, errors.Wrap(err, "read sensor file")
	}
	text := strings.TrimSpace(string(content))
	if strings.Contains(text, "NO") && strings.Contains(text, "crc=") {
		return 0, errors.Errorf("crc check failed in %s", f.Path)
	}
	if idx := strings.LastIndex(text, "t="); idx >= 0 {
		text = text[idx+2:]
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, errors.Errorf("empty sensor file %s", f.Path)
	}
	raw, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", f.Path)
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, errors.Errorf("non-finite value in %s", f.Path)
	}
	return raw * f.Scale, nil
}

// GPIOMotion reads a PIR output through the sysfs GPIO value file.
type GPIOMotion struct {
	Path       string
	ActiveHigh bool
}

func NewGPIOMotion(path string, activeHigh bool) *GPIOMotion {
	return &GPIOMotion{Path: filepath.Clean(path), ActiveHigh: activeHigh}
}

func (g *GPIOMotion) Detected() (bool, error) {
	content, err := os.ReadFile(g.Path)
	if err != nil {
		return false, errors.Wrap(err, "read gpio")
	}
	high := strings.TrimSpace(string(content)) == "1"
	return high == g.ActiveHigh, nil
}

// GPIOActuators drives the buzzer and LEDs through sysfs GPIO value files.
type GPIOActuators struct {
	BuzzerPath string
	LedPaths   []string
}

func NewGPIOActuators(conf entities.ActuatorConfig) *GPIOActuators {
	return &GPIOActuators{BuzzerPath: conf.BuzzerPath, LedPaths: conf.LedPaths}
}

func (g *GPIOActuators) Buzzer(on bool) error {
	if g.BuzzerPath == "" {
		return errors.New("no buzzer configured")
	}
	return writeGPIO(g.BuzzerPath, on)
}

func (g *GPIOActuators) Led(led uint8, on bool) error {
	if int(led) >= len(g.LedPaths) {
		return errors.Errorf("led %d not configured", led)
	}
	return writeGPIO(g.LedPaths[led], on)
}

func writeGPIO(path string, on bool) error {
	value := "0"
	if on {
		value = "1"
	}
	if err := os.WriteFile(filepath.Clean(path), []byte(value), 0600); err != nil {
		return errors.Wrap(err, "write gpio")
	}
	return nil
}
