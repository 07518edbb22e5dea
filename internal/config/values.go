package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/boldsim/internal/sequence"
)

// Angle is a flip angle in radians. Text forms accept plain numbers, pi
// expressions such as "pi/2" or "3*pi/4", and degrees such as "90deg".
type Angle float64

func ParseAngle(s string) (Angle, error) {
	s = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if s == "" {
		return 0, fmt.Errorf("empty angle")
	}
	if deg, ok := strings.CutSuffix(s, "deg"); ok {
		v, err := strconv.ParseFloat(deg, 64)
		if err != nil {
			return 0, fmt.Errorf("angle %q: %w", s, err)
		}
		return Angle(v * math.Pi / 180), nil
	}
	if !strings.Contains(s, "pi") {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("angle %q: %w", s, err)
		}
		return Angle(v), nil
	}

	num, den, hasDen := strings.Cut(s, "/")
	coef := 1.0
	if c, ok := strings.CutSuffix(num, "pi"); ok {
		c = strings.TrimSuffix(c, "*")
		switch c {
		case "":
		case "-":
			coef = -1
		default:
			v, err := strconv.ParseFloat(c, 64)
			if err != nil {
				return 0, fmt.Errorf("angle %q: bad coefficient", s)
			}
			coef = v
		}
	} else {
		return 0, fmt.Errorf("angle %q: expected k*pi/n", s)
	}
	v := coef * math.Pi
	if hasDen {
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0, fmt.Errorf("angle %q: bad divisor", s)
		}
		v /= d
	}
	return Angle(v), nil
}

func (a *Angle) UnmarshalText(text []byte) error {
	v, err := ParseAngle(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a *Angle) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: angle must be a scalar", node.Line)
	}
	return a.UnmarshalText([]byte(node.Value))
}

func (a Angle) MarshalYAML() (any, error) {
	return float64(a), nil
}

// AxisSpec is a pulse axis, written either as a name ("x", "-y") or as a
// [theta, phi] pair in radians.
type AxisSpec struct {
	sequence.Axis
	Name string
}

func ParseAxisSpec(s string) (AxisSpec, error) {
	s = strings.TrimSpace(s)
	if theta, phi, ok := strings.Cut(strings.Trim(s, "[]"), ","); ok {
		t, err := ParseAngle(theta)
		if err != nil {
			return AxisSpec{}, err
		}
		p, err := ParseAngle(phi)
		if err != nil {
			return AxisSpec{}, err
		}
		return AxisSpec{Axis: sequence.Axis{Theta: float64(t), Phi: float64(p)}}, nil
	}
	ax, err := sequence.ParseAxis(s)
	if err != nil {
		return AxisSpec{}, err
	}
	return AxisSpec{Axis: ax, Name: strings.ToLower(s)}, nil
}

func (a *AxisSpec) UnmarshalText(text []byte) error {
	v, err := ParseAxisSpec(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a *AxisSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return a.UnmarshalText([]byte(node.Value))
	case yaml.SequenceNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: axis needs [theta, phi]", node.Line)
		}
		var pair [2]Angle
		for i, n := range node.Content {
			if err := pair[i].UnmarshalYAML(n); err != nil {
				return err
			}
		}
		*a = AxisSpec{Axis: sequence.Axis{Theta: float64(pair[0]), Phi: float64(pair[1])}}
		return nil
	}
	return fmt.Errorf("line %d: axis must be a name or [theta, phi]", node.Line)
}

func (a AxisSpec) MarshalYAML() (any, error) {
	if a.Name != "" {
		return a.Name, nil
	}
	node := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range []float64{a.Theta, a.Phi} {
		node.Content = append(node.Content, &yaml.Node{
			Kind:  yaml.ScalarNode,
			Value: strconv.FormatFloat(v, 'g', -1, 64),
		})
	}
	return node, nil
}

// resolved fills the axis angles from Name.
func (a AxisSpec) resolved() AxisSpec {
	if r, err := ParseAxisSpec(a.Name); err == nil {
		return r
	}
	return a
}
