package tracker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	ts "github.com/sweeprl/sweeper/timestep"
)

// episode tracks a short fake episode with the given rewards
func episode(t *testing.T, tracker *CSVReturn, rewards ...float64) {
	t.Helper()
	for i, r := range rewards {
		stepType := ts.Mid
		if i == 0 {
			stepType = ts.First
		}
		if i == len(rewards)-1 {
			stepType = ts.Last
		}
		tracker.Track(ts.New(stepType, r, 0.99, nil, i))
	}
}

func TestCSVReturnWritesEpisodeRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training_log.csv")

	tracker, err := NewCSVReturn(path)
	if err != nil {
		t.Fatal(err)
	}

	episode(t, tracker, 0, 1, 2)
	episode(t, tracker, 0, -0.5, -0.5)
	if err := tracker.Save(); err != nil {
		t.Fatal(err)
	}

	returns := tracker.Returns()
	if len(returns) != 2 {
		t.Fatalf("want 2 episodic returns, have %v", len(returns))
	}
	if returns[0] != 3.0 || returns[1] != -1.0 {
		t.Errorf("returns: want [3 -1], have %v", returns)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("want header and 2 rows, have %v lines", len(lines))
	}
	if lines[0] != "episode,reward" {
		t.Errorf("header: want episode,reward, have %v", lines[0])
	}
	if lines[1] != "1,3.00" || lines[2] != "2,-1.00" {
		t.Errorf("rows: have %v", lines[1:])
	}
}

func TestCSVReturnAppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training_log.csv")

	first, err := NewCSVReturn(path)
	if err != nil {
		t.Fatal(err)
	}
	episode(t, first, 0, 5)
	if err := first.Save(); err != nil {
		t.Fatal(err)
	}

	// A second run appends to the same log without rewriting the
	// header or dropping earlier rows, and its episode numbering
	// continues where the first run stopped
	second, err := NewCSVReturn(path)
	if err != nil {
		t.Fatal(err)
	}
	episode(t, second, 0, 7)
	if err := second.Save(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("want header and 2 rows, have %v lines", len(lines))
	}
	if lines[1] != "1,5.00" {
		t.Errorf("first run's row should survive, have %v", lines[1])
	}
	if lines[2] != "2,7.00" {
		t.Errorf("second run's row should continue the numbering, have %v",
			lines[2])
	}
}

func TestTrackPanicsOnNonSequentialSteps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training_log.csv")
	tracker, err := NewCSVReturn(path)
	if err != nil {
		t.Fatal(err)
	}
	defer tracker.Save()

	defer func() {
		if recover() == nil {
			t.Error("tracking non-sequential timesteps should panic")
		}
	}()
	tracker.Track(ts.New(ts.Mid, 1, 0.99, nil, 5))
}
