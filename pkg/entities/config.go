package entities

import (
	"time"

	"github.com/pkg/errors"
)

var ErrInvalidConfig = errors.New("invalid node configuration")

const (
	DefaultNetworkResetInterval   = 300 * time.Second
	DefaultNetworkJoinInterval    = 60 * time.Second
	DefaultMaxNetworkSize         = 10
	DefaultSampleInterval         = 30 * time.Second
	DefaultMotionInitialisation   = 2 * time.Second
	DefaultMotionCooloff          = 60 * time.Second
	DefaultMotionCheckInterval    = 100 * time.Millisecond
	DefaultSoundCooloff           = 60 * time.Second
	DefaultLoopInterval           = 10 * time.Millisecond
	DefaultSerialBaud             = 57600
	DefaultLogLevel               = "debug"
	DefaultDedupWindow            = time.Second
	DefaultFilterCapacity         = 100000
	DefaultDuplicationProbability = 0.01
	DefaultMaxFilterUsage         = 75
)

// SensorConfig enables one sensor driver and says how many decimal digits of
// its readings are preserved on the wire.
type SensorConfig struct {
	Code         string  `yaml:"code"`
	DecimalShift int     `yaml:"decimalShift"`
	Path         string  `yaml:"path"`
	Scale        float64 `yaml:"scale"`
}

type NetworkConfig struct {
	BroadcastPipe PipeAddress   `yaml:"broadcastPipe"`
	BasePipe      PipeAddress   `yaml:"basePipe"`
	MaxSize       int           `yaml:"maxSize"`
	ResetInterval time.Duration `yaml:"resetInterval"`
	JoinInterval  time.Duration `yaml:"joinInterval"`
	PollInterval  time.Duration `yaml:"pollInterval"`
}

type MotionConfig struct {
	Enabled            bool          `yaml:"enabled"`
	InitialisationTime time.Duration `yaml:"initialisationTime"`
	Cooloff            time.Duration `yaml:"cooloff"`
	CheckInterval      time.Duration `yaml:"checkInterval"`
	GPIOPath           string        `yaml:"gpioPath"`
	ActiveHigh         bool          `yaml:"activeHigh"`
}

type SoundConfig struct {
	Threshold int64         `yaml:"threshold"`
	Cooloff   time.Duration `yaml:"cooloff"`
}

// ActuatorConfig points at sysfs GPIO value files. LED n drives LedPaths[n].
type ActuatorConfig struct {
	BuzzerPath string   `yaml:"buzzerPath"`
	LedPaths   []string `yaml:"ledPaths"`
}

type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baudRate"`
}

type UplinkConfig struct {
	URL                    string        `yaml:"url"`
	DuplicationFilter      bool          `yaml:"duplicationFilter"`
	DedupWindow            time.Duration `yaml:"dedupWindow"`
	FilterCapacity         uint          `yaml:"filterCapacity"`
	DuplicationProbability float64       `yaml:"duplicationProbability"`
	MaxFilterUsage         float32       `yaml:"maxFilterUsage"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

// NodeConfig is built once at startup and shared read-only by every
// component.
type NodeConfig struct {
	Unit           UnitIdentity   `yaml:"unit"`
	LogLevel       string         `yaml:"logLevel"`
	LoopInterval   time.Duration  `yaml:"loopInterval"`
	SampleInterval time.Duration  `yaml:"sampleInterval"`
	Network        NetworkConfig  `yaml:"network"`
	Motion         MotionConfig   `yaml:"motion"`
	Sound          SoundConfig    `yaml:"sound"`
	Sensors        []SensorConfig `yaml:"sensors"`
	Actuators      ActuatorConfig `yaml:"actuators"`
	Serial         SerialConfig   `yaml:"serial"`
	Uplink         UplinkConfig   `yaml:"uplink"`
	Storage        StorageConfig  `yaml:"storage"`
}

func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Unit:           UnitIdentity{Class: DefaultUnitType, ID: 1},
		LogLevel:       DefaultLogLevel,
		LoopInterval:   DefaultLoopInterval,
		SampleInterval: DefaultSampleInterval,
		Network: NetworkConfig{
			BroadcastPipe: DefaultBroadcastPipe,
			BasePipe:      DefaultBasePipe,
			MaxSize:       DefaultMaxNetworkSize,
			ResetInterval: DefaultNetworkResetInterval,
			JoinInterval:  DefaultNetworkJoinInterval,
		},
		Motion: MotionConfig{
			Enabled:            true,
			InitialisationTime: DefaultMotionInitialisation,
			Cooloff:            DefaultMotionCooloff,
			CheckInterval:      DefaultMotionCheckInterval,
			ActiveHigh:         true,
		},
		Sound: SoundConfig{Cooloff: DefaultSoundCooloff},
		Sensors: []SensorConfig{
			{Code: string(SensorTemperature), DecimalShift: 2},
			{Code: string(SensorHumidity), DecimalShift: 0},
			{Code: string(SensorIlluminance), DecimalShift: 0},
			{Code: string(SensorSound), DecimalShift: 0},
		},
		Serial: SerialConfig{BaudRate: DefaultSerialBaud},
		Uplink: UplinkConfig{
			DedupWindow:            DefaultDedupWindow,
			FilterCapacity:         DefaultFilterCapacity,
			DuplicationProbability: DefaultDuplicationProbability,
			MaxFilterUsage:         DefaultMaxFilterUsage,
		},
	}
}

// UnitPipe is the address this unit is reachable on once joined.
func (c NodeConfig) UnitPipe() PipeAddress {
	return c.Network.BasePipe.Offset(c.Unit.ID)
}

// CoordinatorPipe is the address the coordinator listens on.
func (c NodeConfig) CoordinatorPipe() PipeAddress {
	return c.Network.BasePipe.Offset(CoordinatorID)
}

func (c NodeConfig) Validate() error {
	if c.Unit.Class == "" {
		return errors.Wrap(ErrInvalidConfig, "unit class is empty")
	}
	if c.Network.MaxSize < 2 || c.Network.MaxSize > 0xFF {
		return errors.Wrapf(ErrInvalidConfig, "network size %d out of range", c.Network.MaxSize)
	}
	if !c.Unit.IsCoordinator() && int(c.Unit.ID) >= c.Network.MaxSize {
		return errors.Wrapf(ErrInvalidConfig, "unit id %d must be below network size %d", c.Unit.ID, c.Network.MaxSize)
	}
	broadcast := c.Network.BroadcastPipe
	if broadcast >= c.Network.BasePipe && broadcast < c.Network.BasePipe.Offset(uint8(c.Network.MaxSize)) {
		return errors.Wrapf(ErrInvalidConfig, "broadcast pipe %s collides with unit pipes", broadcast)
	}
	if c.Network.ResetInterval <= 0 || c.Network.JoinInterval <= 0 || c.SampleInterval <= 0 || c.LoopInterval <= 0 {
		return errors.Wrap(ErrInvalidConfig, "intervals must be positive")
	}
	if c.Motion.Enabled && (c.Motion.CheckInterval <= 0 || c.Motion.Cooloff < 0 || c.Motion.InitialisationTime < 0) {
		return errors.Wrap(ErrInvalidConfig, "motion timings are invalid")
	}
	if c.Uplink.URL != "" && (c.Uplink.FilterCapacity == 0 || c.Uplink.DuplicationProbability <= 0 || c.Uplink.DuplicationProbability >= 1) {
		return errors.Wrap(ErrInvalidConfig, "uplink duplication filter needs a capacity and a probability in (0, 1)")
	}
	for _, s := range c.Sensors {
		if len(s.Code) != 1 || !SensorCode(s.Code[0]).Valid() || SensorCode(s.Code[0]) == SensorMotion {
			return errors.Wrapf(ErrInvalidConfig, "unknown sensor code %q", s.Code)
		}
		if s.DecimalShift < 0 || s.DecimalShift > 6 {
			return errors.Wrapf(ErrInvalidConfig, "decimal shift %d for sensor %s", s.DecimalShift, s.Code)
		}
	}
	return nil
}
