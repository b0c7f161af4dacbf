package sensors

import (
	"math"
	"time"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/protocol"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Sensor is a polled driver returning a raw reading in natural units.
type Sensor interface {
	Read() (float64, error)
}

// MotionSensor reports the current level of the motion detector output.
type MotionSensor interface {
	Detected() (bool, error)
}

type channel struct {
	code   entities.SensorCode
	shift  int
	driver Sensor
}

// TickResult carries what one scheduler tick produced. Readings is set when
// a periodic sample was taken; Notifications holds event readings to send
// immediately.
type TickResult struct {
	Readings      []entities.SensorReading
	Notifications []entities.SensorReading
}

// Scheduler runs periodic sampling and motion/sound event detection on the
// cooperative loop.
type Scheduler struct {
	conf        entities.NodeConfig
	channels    []channel
	soundIdx    int
	motion      MotionSensor
	flag        *MotionFlag
	motionGate  *Debouncer
	soundGate   *Debouncer
	lastSample  time.Time
	sampled     bool
	lastCheck   time.Time
	checked     bool
	motionLevel bool
	emit        func() bool
	latest      []entities.SensorReading
	log         *logrus.Entry
}

// NewScheduler binds the configured sensors to their drivers. Configured
// sensors without a driver are skipped. motion and flag may be nil.
func NewScheduler(conf entities.NodeConfig, drivers map[entities.SensorCode]Sensor, motion MotionSensor, flag *MotionFlag, log *logrus.Entry) *Scheduler {
	s := &Scheduler{
		conf:       conf,
		soundIdx:   -1,
		motion:     motion,
		flag:       flag,
		motionGate: NewDebouncer(conf.Motion.InitialisationTime, conf.Motion.Cooloff),
		soundGate:  NewDebouncer(0, conf.Sound.Cooloff),
		log:        log,
	}
	for _, sc := range conf.Sensors {
		if len(sc.Code) != 1 {
			continue
		}
		code := entities.SensorCode(sc.Code[0])
		driver, ok := drivers[code]
		if !ok {
			log.Warnf("no driver for %s, sensor disabled", code)
			continue
		}
		s.channels = append(s.channels, channel{code: code, shift: sc.DecimalShift, driver: driver})
		if code == entities.SensorSound {
			s.soundIdx = len(s.channels) - 1
		}
	}
	return s
}

// EmitWhen makes event notifications depend on ready, typically whether the
// unit is joined. While ready reports false, detections are consumed without
// starting a cooloff.
func (s *Scheduler) EmitWhen(ready func() bool) {
	s.emit = ready
}

func (s *Scheduler) canEmit() bool {
	return s.emit == nil || s.emit()
}

// Arm starts the motion settling window and the sound gate.
func (s *Scheduler) Arm(now time.Time) {
	s.motionGate.Arm(now)
	s.soundGate.Arm(now)
	s.log.Debugf("motion detector armed, settling for %s", s.conf.Motion.InitialisationTime)
}

func (s *Scheduler) Tick(now time.Time) TickResult {
	if !s.motionGate.Armed() {
		s.Arm(now)
	}
	var result TickResult
	if !s.sampled || now.Sub(s.lastSample) >= s.conf.SampleInterval {
		result.Readings = s.Sample(now)
	}
	if !s.checked || now.Sub(s.lastCheck) >= s.conf.Motion.CheckInterval {
		s.lastCheck = now
		s.checked = true
		if r, ok := s.checkMotion(now); ok {
			result.Notifications = append(result.Notifications, r)
		}
		if r, ok := s.checkSound(now); ok {
			result.Notifications = append(result.Notifications, r)
		}
	}
	return result
}

// Sample polls every sensor once and restarts the sampling period.
func (s *Scheduler) Sample(now time.Time) []entities.SensorReading {
	s.lastSample = now
	s.sampled = true
	readings := make([]entities.SensorReading, 0, len(s.channels))
	for _, ch := range s.channels {
		r, err := s.read(ch, now)
		if err != nil {
			s.log.WithError(err).Warnf("read %s", ch.code)
			continue
		}
		readings = append(readings, r)
	}
	s.latest = readings
	return readings
}

// Latest returns the readings of the last sample.
func (s *Scheduler) Latest() []entities.SensorReading {
	return s.latest
}

func (s *Scheduler) read(ch channel, now time.Time) (entities.SensorReading, error) {
	value, err := ch.driver.Read()
	if err != nil {
		return entities.SensorReading{}, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return entities.SensorReading{}, errors.Errorf("non-finite %s reading %v", ch.code, value)
	}
	return entities.SensorReading{
		Unit:         s.conf.Unit.ID,
		Sensor:       ch.code,
		Value:        protocol.FloatToInt(value, ch.shift),
		DecimalShift: ch.shift,
		Timestamp:    now,
	}, nil
}

func (s *Scheduler) checkMotion(now time.Time) (entities.SensorReading, bool) {
	if !s.conf.Motion.Enabled {
		return entities.SensorReading{}, false
	}
	rising := false
	if s.flag != nil && s.flag.Take() {
		rising = true
	}
	if s.motion != nil {
		level, err := s.motion.Detected()
		if err != nil {
			s.log.WithError(err).Warnln("read motion")
		} else {
			rising = rising || (level && !s.motionLevel)
			s.motionLevel = level
		}
	}
	if !rising {
		return entities.SensorReading{}, false
	}
	if !s.canEmit() {
		s.log.Debugln("motion dropped, notifications disabled")
		return entities.SensorReading{}, false
	}
	if !s.motionGate.Trigger(now) {
		s.log.Debugln("motion suppressed")
		return entities.SensorReading{}, false
	}
	s.log.Infoln("motion detected")
	return entities.SensorReading{Unit: s.conf.Unit.ID, Sensor: entities.SensorMotion, Value: 1, Timestamp: now}, true
}

func (s *Scheduler) checkSound(now time.Time) (entities.SensorReading, bool) {
	if s.soundIdx < 0 || s.conf.Sound.Threshold <= 0 || !s.canEmit() {
		return entities.SensorReading{}, false
	}
	r, err := s.read(s.channels[s.soundIdx], now)
	if err != nil {
		s.log.WithError(err).Warnln("read sound")
		return entities.SensorReading{}, false
	}
	if r.Value < s.conf.Sound.Threshold || !s.soundGate.Trigger(now) {
		return entities.SensorReading{}, false
	}
	s.log.Infof("sound level %d over threshold", r.Value)
	return r, true
}
