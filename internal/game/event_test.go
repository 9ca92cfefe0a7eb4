package game

import (
	"encoding/json"
	"testing"
)

func TestEventKeepsZeroCoordinates(t *testing.T) {
	data, err := json.Marshal(Event{Type: EventStompMiss, StomperID: "p1", X: 0, Y: 0})
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"x", "y"} {
		v, ok := got[key]
		if !ok {
			t.Errorf("Expected %s in %s", key, data)
			continue
		}
		if v != 0.0 {
			t.Errorf("Expected %s=0, got %v", key, v)
		}
	}
}

func TestEventVisibility(t *testing.T) {
	e := Event{Type: EventStompKill, Room: "1,1", StomperID: "p1", VictimID: "p2"}

	tests := []struct {
		name   string
		player string
		room   string
		want   bool
	}{
		{"same room", "p9", "1,1", true},
		{"stomper elsewhere", "p1", "0,0", true},
		{"victim elsewhere", "p2", "2,2", true},
		{"bystander elsewhere", "p9", "0,0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.VisibleTo(tt.player, tt.room); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
