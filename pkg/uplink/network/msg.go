package network

import "time"

type Reading struct {
	Sensor    string    `json:"sensor"`
	Value     int64     `json:"value"`
	Scaled    float64   `json:"scaled"`
	Timestamp time.Time `json:"timestamp"`
}

type ReadingsSent struct {
	ID       string    `json:"id"`
	Class    string    `json:"class,omitempty"`
	Unit     uint8     `json:"unit"`
	Readings []Reading `json:"readings"`
}

type UnitJoined struct {
	ID        string    `json:"id"`
	Class     string    `json:"class"`
	Requested uint8     `json:"requested"`
	Assigned  uint8     `json:"assigned"`
	Pipe      string    `json:"pipe"`
	Timestamp time.Time `json:"timestamp"`
}
