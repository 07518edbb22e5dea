package viz

import (
	"math"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/geometry"
	"github.com/san-kum/boldsim/internal/vessel"
)

func TestCanvasSet(t *testing.T) {
	c := NewCanvas(4, 2)
	c.Set(3, 5)
	c.Set(-1, 0)
	c.Set(100, 100)
	if !c.IsSet(3, 5) {
		t.Fatal("pixel (3,5) not set")
	}
	if c.IsSet(2, 5) {
		t.Fatal("neighbour pixel set")
	}
	c.Clear()
	if c.IsSet(3, 5) {
		t.Fatal("clear left pixel set")
	}
}

func TestDrawCircleSymmetric(t *testing.T) {
	c := NewCanvas(20, 10)
	c.DrawCircle(20, 20, 8)
	for _, p := range [][2]int{{28, 20}, {12, 20}, {20, 28}, {20, 12}} {
		if !c.IsSet(p[0], p[1]) {
			t.Errorf("circle misses %v", p)
		}
	}
	if c.IsSet(20, 20) {
		t.Error("circle outline filled its centre")
	}
}

func TestCopyFrom(t *testing.T) {
	src := NewCanvas(3, 3)
	src.DrawLine(0, 0, 5, 11)
	dst := NewCanvas(3, 3)
	dst.CopyFrom(src)
	if dst.String() != src.String() {
		t.Fatal("copy differs from source")
	}
}

func oneVessel(t *testing.T, dim int) *geometry.ContinuousVoxel {
	t.Helper()
	v, err := geometry.NewContinuousVoxel(dim, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	ves, err := vessel.NewCylinder(0.4, vessel.Vec{}, math.Pi/2, 0, 1e-7, 0, "vessel")
	if err != nil {
		t.Fatal(err)
	}
	if err := v.AddVessel(ves); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestDrawOwnership(t *testing.T) {
	v := oneVessel(t, 2)
	c := NewCanvas(20, 10)
	DrawOwnership(c, v)

	f := newFrame(c, v.Size())
	cx, cy := f.pixel(vessel.Vec{})
	if !c.IsSet(cx, cy) {
		t.Error("vessel centre not filled")
	}
	corner, _ := f.pixel(vessel.Vec{-0.45, 0.45, 0})
	if c.IsSet(corner, f.oy+1) {
		t.Error("extravascular corner filled")
	}
}

func TestDrawSpinsLimit(t *testing.T) {
	positions := make([]vessel.Vec, 100)
	for i := range positions {
		positions[i] = vessel.Vec{-0.5 + float64(i)/100, 0, 0}
	}
	c := NewCanvas(40, 10)
	DrawSpins(c, positions, 1, 10)

	lit := 0
	for y := 0; y < c.PixelHeight(); y++ {
		for x := 0; x < c.PixelWidth(); x++ {
			if c.IsSet(x, y) {
				lit++
			}
		}
	}
	if lit == 0 || lit > 10 {
		t.Fatalf("lit %d pixels, want 1..10", lit)
	}
}

func TestClipToCube(t *testing.T) {
	tests := []struct {
		name   string
		o, a   vessel.Vec
		lo, hi float64
		ok     bool
	}{
		{"axis through centre", vessel.Vec{}, vessel.Vec{0, 0, 1}, -1, 1, true},
		{"offset along x", vessel.Vec{0.5, 0, 0}, vessel.Vec{1, 0, 0}, -1.5, 0.5, true},
		{"outside", vessel.Vec{2, 2, 0}, vessel.Vec{0, 0, 1}, 0, 0, false},
		{"parallel beside a face", vessel.Vec{1.5, 0, 0}, vessel.Vec{0, 1, 0}, 0, 0, false},
		{"parallel on a face", vessel.Vec{1, 0, 0}, vessel.Vec{0, 0, 1}, -1, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi, ok := clipToCube(tt.o, tt.a)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && (math.Abs(lo-tt.lo) > 1e-12 || math.Abs(hi-tt.hi) > 1e-12) {
				t.Errorf("got [%g, %g], want [%g, %g]", lo, hi, tt.lo, tt.hi)
			}
		})
	}
}

func TestVoxelWireframe(t *testing.T) {
	w := VoxelWireframe(oneVessel(t, 3))
	if len(w.Edges) != 13 {
		t.Fatalf("got %d edges, want 12 cube edges plus one axis", len(w.Edges))
	}
	c := NewCanvas(30, 15)
	Render3D(c, w, NewCamera())
	if !strings.ContainsFunc(c.String(), func(r rune) bool { return r > 0x2800 && r <= 0x28ff }) {
		t.Fatal("wireframe rendered nothing")
	}
}

func TestPlotSignals(t *testing.T) {
	if PlotSignals(nil, nil, nil, 20, 5, "") != "" {
		t.Fatal("empty series should render nothing")
	}
	total := []float64{1, 0.9, 0.8, 0.7}
	if out := PlotSignals(total, total, nil, 20, 5, "decay"); !strings.Contains(out, "decay") {
		t.Fatalf("caption missing from plot:\n%s", out)
	}
}

func TestNextThemeCycles(t *testing.T) {
	start := CurrentTheme.Name
	defer SetTheme(start)
	for range Themes {
		NextTheme()
	}
	if CurrentTheme.Name != start {
		t.Fatalf("after a full cycle theme is %q, want %q", CurrentTheme.Name, start)
	}
}

type constPropagator struct{}

func (constPropagator) Advance(step int) (dynamo.Signal, error) {
	return dynamo.NewSignal(complex(4, 0), complex(1, 0), 4, 1), nil
}
func (constPropagator) Dt() float64  { return 1 }
func (constPropagator) Reset() error { return nil }

func TestModelStepsAndResets(t *testing.T) {
	sim, err := dynamo.New(constPropagator{}, 5)
	if err != nil {
		t.Fatal(err)
	}
	m := NewModel("test", sim, oneVessel(t, 2))
	m.stepsPerTick = 2

	next, _ := m.Update(TickMsg{})
	m = next.(Model)
	if len(m.total) != 2 || m.total[0] != 1 {
		t.Fatalf("history after one tick = %v", m.total)
	}
	for range 5 {
		next, _ = m.Update(TickMsg{})
		m = next.(Model)
	}
	if sim.Status() != dynamo.StatusFinalized || len(m.total) != 5 {
		t.Fatalf("status %v with %d samples", sim.Status(), len(m.total))
	}
	if m.View() == "" {
		t.Fatal("empty view")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("[")})
	m = next.(Model)
	if m.playHead != 3 {
		t.Fatalf("playHead = %d, want 3", m.playHead)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	m = next.(Model)
	if len(m.total) != 0 || m.playHead != -1 || sim.CurrentStep() != 0 {
		t.Fatalf("reset left %d samples at step %d", len(m.total), sim.CurrentStep())
	}
}

func TestPickerLaunchesWithEditedParams(t *testing.T) {
	var got map[string]float64
	launch := func(p Preset, params map[string]float64) (Model, error) {
		got = params
		sim, err := dynamo.New(constPropagator{}, 3)
		if err != nil {
			return Model{}, err
		}
		return NewModel(p.Name, sim, nil), nil
	}
	paramsFor := func(Preset) []Param { return []Param{{Name: "cbv", Value: 0.03, Step: 0.01}} }
	app := NewInteractiveApp([]Preset{{"montecarlo", "spin_echo"}, {"montecarlo", "gradient_echo"}}, paramsFor, launch)

	for _, key := range []string{"j", "enter", "l", "s"} {
		next, _ := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
		app = next
	}
	p := app.(picker)
	if p.state != stateSim {
		t.Fatalf("state = %d, want live view", p.state)
	}
	if math.Abs(got["cbv"]-0.04) > 1e-12 {
		t.Fatalf("launched with cbv %v, want 0.04", got["cbv"])
	}
	if p.liveModel.title != "gradient_echo" {
		t.Fatalf("launched %q", p.liveModel.title)
	}
}
