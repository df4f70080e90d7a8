package hysteresis

import (
	"testing"

	"github.com/assetwatch/assetwatch/internal/models"
)

func TestUpdate_EscalationRequiresStreak(t *testing.T) {
	m := New(DefaultConfig())

	// required_consecutive-1 alarm-zone samples leave status at OK.
	for i := 0; i < DefaultRequiredConsecutive-1; i++ {
		if got := m.Update(0.95); got != models.StatusOK {
			t.Fatalf("sample %d: expected OK, got %s", i+1, got)
		}
	}

	// The next qualifying sample commits ALARM.
	if got := m.Update(0.95); got != models.StatusAlarm {
		t.Fatalf("expected ALARM after %d consecutive samples, got %s", DefaultRequiredConsecutive, got)
	}
	if m.Streak() != 0 {
		t.Fatalf("streak should reset after commit, got %d", m.Streak())
	}
}

func TestUpdate_StreakResetsOnNonQualifyingSample(t *testing.T) {
	m := New(DefaultConfig())

	m.Update(0.5)
	m.Update(0.5)
	if got := m.Update(0.95); got != models.StatusOK {
		t.Fatalf("single spike after ok-zone samples must not trigger, got %s", got)
	}

	// Streak interrupted mid-build never commits.
	m.Update(0.95)
	m.Update(0.3) // breaks the streak
	m.Update(0.95)
	if got := m.Update(0.95); got != models.StatusOK {
		t.Fatalf("interrupted streak committed early: %s", got)
	}
}

func TestUpdate_WarnEscalation(t *testing.T) {
	m := New(DefaultConfig())

	for i := 0; i < DefaultRequiredConsecutive; i++ {
		m.Update(0.75)
	}
	if m.Status() != models.StatusWarn {
		t.Fatalf("expected WARN, got %s", m.Status())
	}

	// Staying in the warn zone does not build anything further.
	m.Update(0.75)
	if m.Streak() != 0 {
		t.Fatalf("streak should stay zero while holding WARN, got %d", m.Streak())
	}
}

func driveToAlarm(m *Machine) {
	for i := 0; i < DefaultRequiredConsecutive; i++ {
		m.Update(0.95)
	}
}

func TestUpdate_DeescalationMarginGuard(t *testing.T) {
	cfg := DefaultConfig()
	m := New(cfg)
	driveToAlarm(m)

	// Score inside the margin (alarm-0.05 >= alarm-margin) never starts a
	// downgrade streak.
	inside := cfg.AlarmThreshold - 0.05
	for i := 0; i < DefaultRequiredConsecutive*2; i++ {
		if got := m.Update(inside); got != models.StatusAlarm {
			t.Fatalf("margin-guarded sample downgraded status: %s", got)
		}
	}
	if m.Streak() != 0 {
		t.Fatalf("guarded samples must not build a streak, got %d", m.Streak())
	}

	// Score outside the margin builds and commits a WARN downgrade.
	outside := cfg.AlarmThreshold - 0.15
	for i := 0; i < DefaultRequiredConsecutive-1; i++ {
		if got := m.Update(outside); got != models.StatusAlarm {
			t.Fatalf("premature downgrade on sample %d: %s", i+1, got)
		}
	}
	if got := m.Update(outside); got != models.StatusWarn {
		t.Fatalf("expected WARN downgrade after streak, got %s", got)
	}
}

func TestUpdate_AlarmToOK(t *testing.T) {
	m := New(DefaultConfig())
	driveToAlarm(m)

	for i := 0; i < DefaultRequiredConsecutive-1; i++ {
		m.Update(0.1)
	}
	if m.Status() != models.StatusAlarm {
		t.Fatalf("premature recovery: %s", m.Status())
	}
	if got := m.Update(0.1); got != models.StatusOK {
		t.Fatalf("expected OK after sustained recovery, got %s", got)
	}
}

func TestUpdate_MixedTargetsRestartStreak(t *testing.T) {
	m := New(DefaultConfig())
	driveToAlarm(m)

	// Alternating ok-zone and outside-margin warn-zone samples build toward
	// different targets; neither streak completes.
	m.Update(0.1)  // toward OK
	m.Update(0.75) // toward WARN, restarts
	m.Update(0.1)  // toward OK, restarts
	if m.Status() != models.StatusAlarm {
		t.Fatalf("mixed targets should not commit, got %s", m.Status())
	}
}

func TestReset_MatchesFreshMachine(t *testing.T) {
	m := New(DefaultConfig())
	driveToAlarm(m)
	m.Reset()

	fresh := New(DefaultConfig())
	if m.Status() != fresh.Status() || m.Streak() != fresh.Streak() {
		t.Fatalf("reset machine differs from fresh: %s/%d", m.Status(), m.Streak())
	}

	// Same escalation behavior as a fresh machine.
	for i := 0; i < DefaultRequiredConsecutive-1; i++ {
		m.Update(0.95)
		fresh.Update(0.95)
	}
	if m.Status() != fresh.Status() {
		t.Fatal("post-reset behavior diverges from fresh machine")
	}
}

func TestUpdate_AlarmZoneWhileAlarmedResetsCounter(t *testing.T) {
	m := New(DefaultConfig())
	driveToAlarm(m)

	m.Update(0.95)
	if m.Streak() != 0 {
		t.Fatalf("alarm-zone sample while ALARM must reset the counter, got %d", m.Streak())
	}
}
