package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/dispatch"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/logging"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/node"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/radio"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/sensors"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/storage"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/uplink"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/uplink/network"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	configPath  = flag.String("config", "lurker.yaml", "node configuration file")
	sensorsPath = flag.String("sensors", "", "optional sensor list overriding the one in the configuration")
)

func main() {
	flag.Parse()

	conf, err := loadConfig()
	if err != nil {
		logging.NewLogrus(entities.DefaultLogLevel, os.Stderr).Get("main").WithError(err).Fatalln("load configuration")
	}
	logger := logging.NewLogrus(conf.LogLevel, os.Stdout)
	log := logger.ForUnit("main", conf.Unit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, logger); err != nil {
		log.WithError(err).Fatalln("node stopped")
	}
}

func loadConfig() (entities.NodeConfig, error) {
	conf, err := utils.LoadNodeConfig(*configPath)
	if err != nil || *sensorsPath == "" {
		return conf, err
	}
	conf.Sensors, err = utils.ConfigurationParser(*sensorsPath, []entities.SensorConfig(nil))
	if err != nil {
		return conf, errors.Wrapf(err, "parse %s", *sensorsPath)
	}
	return conf, conf.Validate()
}

func run(ctx context.Context, conf entities.NodeConfig, logger *logging.Logrus) error {
	log := logger.ForUnit("main", conf.Unit)
	driver, err := openRadio(conf, logger.ForUnit("radio", conf.Unit))
	if err != nil {
		return err
	}
	defer driver.Close()

	var n *node.Node
	if conf.Unit.IsCoordinator() {
		var closeSinks func()
		n, closeSinks, err = buildCoordinator(conf, driver, logger)
		if closeSinks != nil {
			defer closeSinks()
		}
	} else {
		n, err = buildLeaf(ctx, conf, driver, logger)
	}
	if err != nil {
		return err
	}
	log.Infof("unit %s starting", conf.Unit)
	return n.Run(ctx)
}

func openRadio(conf entities.NodeConfig, log *logrus.Entry) (radio.Driver, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	var driver *radio.SerialDriver
	err := backoff.Retry(func() error {
		var err error
		driver, err = radio.OpenSerial(conf.Serial, log)
		if err != nil {
			log.WithError(err).Warnln("radio modem unavailable")
		}
		return err
	}, b)
	if err != nil {
		return nil, err
	}
	return driver, nil
}

func buildLeaf(ctx context.Context, conf entities.NodeConfig, driver radio.Driver, logger *logging.Logrus) (*node.Node, error) {
	drivers := make(map[entities.SensorCode]sensors.Sensor)
	for _, sc := range conf.Sensors {
		if sc.Path != "" {
			drivers[entities.SensorCode(sc.Code[0])] = sensors.NewFileSensor(sc.Path, sc.Scale)
		}
	}
	var motion sensors.MotionSensor
	if conf.Motion.GPIOPath != "" {
		motion = sensors.NewGPIOMotion(conf.Motion.GPIOPath, conf.Motion.ActiveHigh)
	}
	motionFlag := &sensors.MotionFlag{}
	go raiseMotionOnSignal(ctx, motionFlag)

	var actuators dispatch.Actuators
	if conf.Actuators.BuzzerPath != "" || len(conf.Actuators.LedPaths) > 0 {
		actuators = sensors.NewGPIOActuators(conf.Actuators)
	}
	scheduler := sensors.NewScheduler(conf, drivers, motion, motionFlag, logger.ForUnit("scheduler", conf.Unit))
	return node.NewLeaf(conf, driver, scheduler, actuators, logger)
}

// raiseMotionOnSignal lets an external detector report motion with SIGUSR1.
func raiseMotionOnSignal(ctx context.Context, motionFlag *sensors.MotionFlag) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1)
	defer signal.Stop(signals)
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			motionFlag.Set()
		}
	}
}

func buildCoordinator(conf entities.NodeConfig, driver radio.Driver, logger *logging.Logrus) (*node.Node, func(), error) {
	var sinks dispatch.MultiSink
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	if conf.Storage.Path != "" {
		store, err := storage.NewReadingStore(conf.Storage.Path, logger.ForUnit("storage", conf.Unit))
		if err != nil {
			return nil, closeAll, err
		}
		sinks = append(sinks, store)
		closers = append(closers, store.Close)
	}

	var integration *uplink.Integration
	if conf.Uplink.URL != "" {
		amqp := network.NewAMQPHandler(network.NewAmqpConnection(conf.Uplink.URL), logger.ForUnit("amqp", conf.Unit))
		integration = uplink.NewIntegration(conf.Uplink, amqp, logger.ForUnit("uplink", conf.Unit))
		if err := integration.Start(); err != nil {
			return nil, closeAll, err
		}
		sinks = append(sinks, integration)
		closers = append(closers, integration.Close)
	}

	n, err := node.NewCoordinator(conf, driver, sinks, logger)
	if err != nil {
		return nil, closeAll, err
	}
	if integration != nil {
		n.OnJoin(integration.UnitJoined)
		n.SetCommands(integration.Commands())
	}
	return n, closeAll, nil
}
