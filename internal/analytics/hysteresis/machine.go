package hysteresis

// Package hysteresis stabilizes a noisy scalar anomaly score into a
// categorical OK/WARN/ALARM status. Every status change requires a streak
// of consecutive qualifying samples, and leaving ALARM additionally
// requires the score to clear an extra margin below the alarm threshold,
// so no single sample can flip the reported status and the machine never
// flaps at a boundary.

import (
	"github.com/assetwatch/assetwatch/internal/models"
)

// Default thresholds for a score on the 0.0-1.0 convention.
const (
	DefaultWarnThreshold       = 0.7
	DefaultAlarmThreshold      = 0.9
	DefaultRequiredConsecutive = 3
	DefaultMargin              = 0.1
)

// zone classifies a score against the two thresholds.
type zone int

const (
	zoneOK zone = iota
	zoneWarn
	zoneAlarm
)

// rule is one row of the transition table: what a sample in a given zone
// does to the machine in a given status.
type rule struct {
	build   bool          // sample builds a streak toward target
	target  models.Status // committed once the streak completes
	guarded bool          // streak only qualifies below alarmThreshold-margin
}

// transitions is the full status × zone table. Rows with build=false reset
// the streak (the "stay put" cases).
var transitions = map[models.Status][3]rule{
	models.StatusOK: {
		zoneOK:    {},
		zoneWarn:  {build: true, target: models.StatusWarn},
		zoneAlarm: {build: true, target: models.StatusAlarm},
	},
	models.StatusWarn: {
		zoneOK:    {build: true, target: models.StatusOK},
		zoneWarn:  {},
		zoneAlarm: {build: true, target: models.StatusAlarm},
	},
	models.StatusAlarm: {
		zoneOK:    {build: true, target: models.StatusOK},
		zoneWarn:  {build: true, target: models.StatusWarn, guarded: true},
		zoneAlarm: {},
	},
}

// Config holds the thresholds for one machine.
type Config struct {
	WarnThreshold       float64
	AlarmThreshold      float64
	RequiredConsecutive int
	Margin              float64
}

// DefaultConfig returns the default hysteresis thresholds.
func DefaultConfig() Config {
	return Config{
		WarnThreshold:       DefaultWarnThreshold,
		AlarmThreshold:      DefaultAlarmThreshold,
		RequiredConsecutive: DefaultRequiredConsecutive,
		Margin:              DefaultMargin,
	}
}

// Machine is the per-entity debounce state: current status plus the
// consecutive-qualifying-sample streak. Single writer per entity.
type Machine struct {
	cfg     Config
	status  models.Status
	pending models.Status // streak target; a different target restarts the streak
	count   int
}

// New creates a machine in the OK state.
func New(cfg Config) *Machine {
	if cfg.RequiredConsecutive <= 0 {
		cfg.RequiredConsecutive = DefaultRequiredConsecutive
	}
	return &Machine{cfg: cfg, status: models.StatusOK}
}

// Update consumes one anomaly score and returns the (possibly unchanged)
// status after applying the transition table.
func (m *Machine) Update(score float64) models.Status {
	r := transitions[m.status][m.classify(score)]

	if !r.build || (r.guarded && score >= m.cfg.AlarmThreshold-m.cfg.Margin) {
		// Non-qualifying sample: streak broken.
		m.count = 0
		m.pending = ""
		return m.status
	}

	if m.pending != r.target {
		// Streak toward a different target restarts.
		m.pending = r.target
		m.count = 0
	}
	m.count++
	if m.count >= m.cfg.RequiredConsecutive {
		m.status = r.target
		m.count = 0
		m.pending = ""
	}
	return m.status
}

// Reset forces the machine back to OK with an empty streak. Used when an
// entity's monitoring restarts, e.g. after a model refit.
func (m *Machine) Reset() {
	m.status = models.StatusOK
	m.count = 0
	m.pending = ""
}

// Status returns the current debounced status.
func (m *Machine) Status() models.Status { return m.status }

// Streak returns the current consecutive-qualifying-sample count.
func (m *Machine) Streak() int { return m.count }

func (m *Machine) classify(score float64) zone {
	switch {
	case score >= m.cfg.AlarmThreshold:
		return zoneAlarm
	case score >= m.cfg.WarnThreshold:
		return zoneWarn
	default:
		return zoneOK
	}
}
