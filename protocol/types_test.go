package protocol

import (
	"math"
	"testing"
)

func TestMoveHasPosition(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	cases := []struct {
		name string
		m    Move
		want bool
	}{
		{"complete", Move{X: f(1), Y: f(0), Z: f(-2)}, true},
		{"missing z", Move{X: f(1), Y: f(0)}, false},
		{"nan x", Move{X: f(math.NaN()), Y: f(0), Z: f(0)}, false},
		{"inf y", Move{X: f(0), Y: f(math.Inf(1)), Z: f(0)}, false},
		{"inf velocity", Move{X: f(0), Y: f(0), Z: f(0), VelocityY: math.Inf(-1)}, false},
	}
	for _, c := range cases {
		if got := c.m.HasPosition(); got != c.want {
			t.Errorf("%s: HasPosition = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestObstacleFinite(t *testing.T) {
	o := Obstacle{ID: "o", Position: Vec3{Y: 20}, BaseSpeed: 0.06, ShapeType: ShapeCube}
	if !o.Finite() {
		t.Fatalf("plain obstacle reported non-finite")
	}
	o.RotationSpeed.Z = math.NaN()
	if o.Finite() {
		t.Fatalf("NaN rotation speed accepted")
	}
}

func TestValidResult(t *testing.T) {
	for _, r := range []string{"", ResultLose, ResultWin, ResultDraw} {
		if !ValidResult(r) {
			t.Errorf("%q rejected", r)
		}
	}
	if ValidResult("forfeit") {
		t.Errorf("unknown result accepted")
	}
}
