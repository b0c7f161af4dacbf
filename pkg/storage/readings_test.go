package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/dispatch"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ dispatch.ReadingSink = (*ReadingStore)(nil)

var epoch = time.Date(2024, 7, 13, 12, 0, 0, 0, time.UTC)

func nullLog() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func openStore(t *testing.T) (*ReadingStore, string) {
	path := filepath.Join(t.TempDir(), "readings.db")
	store, err := NewReadingStore(path, nullLog())
	require.NoError(t, err)
	return store, path
}

func TestLatestReturnsNewestPerSensor(t *testing.T) {
	store, _ := openStore(t)
	defer store.Close()
	unit := entities.UnitIdentity{Class: "lurker", ID: 2}

	require.NoError(t, store.Deliver(unit, []entities.SensorReading{
		{Unit: 2, Sensor: entities.SensorTemperature, Value: 2000, DecimalShift: 2, Timestamp: epoch},
		{Unit: 2, Sensor: entities.SensorHumidity, Value: 40, Timestamp: epoch},
	}))
	require.NoError(t, store.Deliver(unit, []entities.SensorReading{
		{Unit: 2, Sensor: entities.SensorTemperature, Value: 2137, DecimalShift: 2, Timestamp: epoch.Add(30 * time.Second)},
	}))

	records, err := store.Latest(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, entities.SensorHumidity, records[0].Reading.Sensor)
	assert.Equal(t, int64(40), records[0].Reading.Value)
	assert.Equal(t, entities.SensorTemperature, records[1].Reading.Sensor)
	assert.Equal(t, int64(2137), records[1].Reading.Value)
	assert.InDelta(t, 21.37, records[1].Scaled, 1e-9)
	assert.Equal(t, epoch.Add(30*time.Second), records[1].Reading.Timestamp)
	assert.Equal(t, unit, records[1].Source)
}

func TestLatestForUnknownUnitIsEmpty(t *testing.T) {
	store, _ := openStore(t)
	defer store.Close()

	records, err := store.Latest(context.Background(), 9)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEmptyDeliveryStoresNothing(t *testing.T) {
	store, _ := openStore(t)
	defer store.Close()

	require.NoError(t, store.Deliver(entities.UnitIdentity{ID: 3}, nil))
	n, err := store.Count(context.Background(), 3)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReadingsSurviveReopen(t *testing.T) {
	store, path := openStore(t)
	require.NoError(t, store.Deliver(entities.UnitIdentity{Class: "lurker", ID: 4}, []entities.SensorReading{
		{Unit: 4, Sensor: entities.SensorMotion, Value: 1, Timestamp: epoch},
	}))
	require.NoError(t, store.Close())

	reopened, err := NewReadingStore(path, nullLog())
	require.NoError(t, err)
	defer reopened.Close()
	n, err := reopened.Count(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
