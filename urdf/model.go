// Package urdf reads the physical parameters of a planar arm and its pendulum from a
// Universal Robot Description Format (URDF) file. Only the fields needed to build the
// simulation are parsed; models are never written back.
package urdf

import (
	"encoding/xml"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Extension is the file extension associated with URDF files.
const Extension string = "urdf"

// Joint types understood by ArmParams.
const (
	RevoluteJoint   = "revolute"
	ContinuousJoint = "continuous"
	FixedJoint      = "fixed"
)

// ModelConfig represents the supported fields of a URDF robot element.
type ModelConfig struct {
	XMLName xml.Name `xml:"robot"`
	Name    string   `xml:"name,attr"`
	Links   []Link   `xml:"link"`
	Joints  []Joint  `xml:"joint"`
}

// Link details the XML used in a URDF link element.
type Link struct {
	Name     string    `xml:"name,attr"`
	Inertial *Inertial `xml:"inertial,omitempty"`
}

// Inertial holds the mass properties of a link.
type Inertial struct {
	Origin *Pose `xml:"origin,omitempty"`
	Mass   struct {
		Value float64 `xml:"value,attr"`
	} `xml:"mass"`
	Inertia struct {
		Ixx float64 `xml:"ixx,attr"`
		Iyy float64 `xml:"iyy,attr"`
		Izz float64 `xml:"izz,attr"`
	} `xml:"inertia"`
}

// Joint details the XML used in a URDF joint element.
type Joint struct {
	Name   string `xml:"name,attr"`
	Type   string `xml:"type,attr"`
	Parent frame  `xml:"parent"`
	Child  frame  `xml:"child"`
	Origin *Pose  `xml:"origin,omitempty"`
	Axis   *Axis  `xml:"axis,omitempty"`
	Limit  *Limit `xml:"limit,omitempty"`
}

type frame struct {
	Link string `xml:"link,attr"`
}

// Pose is a URDF origin element, both attributes in "x y z" format.
type Pose struct {
	XYZ string `xml:"xyz,attr"`
	RPY string `xml:"rpy,attr"`
}

// Axis is a URDF joint axis.
type Axis struct {
	XYZ string `xml:"xyz,attr"`
}

// Limit is a URDF joint limit. Angles are in radians, effort in Nm.
type Limit struct {
	Effort   float64 `xml:"effort,attr"`
	Velocity float64 `xml:"velocity,attr"`
	Lower    float64 `xml:"lower,attr"`
	Upper    float64 `xml:"upper,attr"`
}

// Read parses the URDF file at path.
func Read(path string) (*ModelConfig, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read URDF file")
	}
	return Unmarshal(data)
}

// Unmarshal parses URDF XML data.
func Unmarshal(data []byte) (*ModelConfig, error) {
	model := &ModelConfig{}
	if err := xml.Unmarshal(data, model); err != nil {
		return nil, errors.Wrap(err, "failed to convert URDF data to equivalent ModelConfig struct")
	}
	return model, nil
}

// Link returns the named link.
func (m *ModelConfig) Link(name string) (Link, error) {
	for _, l := range m.Links {
		if l.Name == name {
			return l, nil
		}
	}
	return Link{}, errors.Errorf("URDF model %s has no link %s", m.Name, name)
}

// Joint returns the named joint.
func (m *ModelConfig) Joint(name string) (Joint, error) {
	for _, j := range m.Joints {
		if j.Name == name {
			return j, nil
		}
	}
	return Joint{}, errors.Errorf("URDF model %s has no joint %s", m.Name, name)
}

// Translation returns the xyz offset of a pose, zero when the pose is absent.
func (p *Pose) Translation() (r3.Vector, error) {
	if p == nil || strings.TrimSpace(p.XYZ) == "" {
		return r3.Vector{}, nil
	}
	vals, err := spaceDelimitedStringToFloatSlice(p.XYZ)
	if err != nil {
		return r3.Vector{}, err
	}
	if len(vals) != 3 {
		return r3.Vector{}, errors.Errorf("origin xyz %q must have 3 values", p.XYZ)
	}
	return r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// Parse returns the axis as a unit vector.
func (a *Axis) Parse() (r3.Vector, error) {
	if a == nil {
		return r3.Vector{X: 1}, nil
	}
	vals, err := spaceDelimitedStringToFloatSlice(a.XYZ)
	if err != nil {
		return r3.Vector{}, err
	}
	if len(vals) != 3 {
		return r3.Vector{}, errors.Errorf("axis xyz %q must have 3 values", a.XYZ)
	}
	v := r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]}
	if v.Norm() == 0 {
		return r3.Vector{}, errors.New("axis must be non zero")
	}
	return v.Normalize(), nil
}

// InertiaAboutJoint returns the moment of inertia of the link about an axis through its
// parent joint, using the parallel axis theorem on the inertial origin.
func (l Link) InertiaAboutJoint(axis r3.Vector) (float64, error) {
	if l.Inertial == nil {
		return 0, errors.Errorf("link %s has no inertial element", l.Name)
	}
	com, err := l.Inertial.Origin.Translation()
	if err != nil {
		return 0, err
	}
	var principal float64
	switch {
	case math.Abs(axis.X) > 0.5:
		principal = l.Inertial.Inertia.Ixx
	case math.Abs(axis.Z) > 0.5:
		principal = l.Inertial.Inertia.Izz
	default:
		principal = l.Inertial.Inertia.Iyy
	}
	// distance of the center of mass from the joint axis
	offset := com.Sub(axis.Mul(com.Dot(axis))).Norm()
	return principal + l.Inertial.Mass.Value*offset*offset, nil
}

func spaceDelimitedStringToFloatSlice(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid number %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}
