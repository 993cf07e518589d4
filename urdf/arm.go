package urdf

import (
	"github.com/pkg/errors"

	"go.viam.com/balance/environment/armpendulum"
)

// ArmJoints names the three joints of a planar arm carrying a pendulum: the shoulder, the
// elbow and the unactuated pendulum pivot at the end effector.
type ArmJoints struct {
	Shoulder string `json:"shoulder"`
	Elbow    string `json:"elbow"`
	Pendulum string `json:"pendulum"`
}

// DefaultArmJoints are the joint names used by the bundled models.
var DefaultArmJoints = ArmJoints{Shoulder: "shoulder", Elbow: "elbow", Pendulum: "pendulum"}

// ArmParams overrides the geometric and inertial fields of base with the values found in the
// model. Link lengths are the distances between consecutive joint origins, joint inertias are
// the child link inertias about the joint axis, and the pendulum length is the distance from
// the pivot to the pendulum center of mass.
func ArmParams(model *ModelConfig, joints ArmJoints, base armpendulum.Params) (armpendulum.Params, error) {
	p := base
	names := []string{joints.Shoulder, joints.Elbow, joints.Pendulum}
	js := make([]Joint, len(names))
	for i, name := range names {
		j, err := model.Joint(name)
		if err != nil {
			return base, err
		}
		if j.Type != RevoluteJoint && j.Type != ContinuousJoint {
			return base, errors.Errorf("joint %s must be revolute or continuous, got %q", name, j.Type)
		}
		js[i] = j
	}
	if js[1].Parent.Link != js[0].Child.Link || js[2].Parent.Link != js[1].Child.Link {
		return base, errors.Errorf("joints %s, %s and %s must form a chain", names[0], names[1], names[2])
	}

	upper, err := js[1].Origin.Translation()
	if err != nil {
		return base, errors.Wrapf(err, "joint %s", names[1])
	}
	fore, err := js[2].Origin.Translation()
	if err != nil {
		return base, errors.Wrapf(err, "joint %s", names[2])
	}
	p.Link1 = upper.Norm()
	p.Link2 = fore.Norm()

	for i := 0; i < 2; i++ {
		axis, err := js[i].Axis.Parse()
		if err != nil {
			return base, errors.Wrapf(err, "joint %s", names[i])
		}
		child, err := model.Link(js[i].Child.Link)
		if err != nil {
			return base, err
		}
		inertia, err := child.InertiaAboutJoint(axis)
		if err != nil {
			return base, err
		}
		p.JointInertia[i] = inertia
		if js[i].Limit != nil && js[i].Limit.Effort > 0 {
			p.EffortLimit[i] = js[i].Limit.Effort
		}
	}

	bob, err := model.Link(js[2].Child.Link)
	if err != nil {
		return base, err
	}
	if bob.Inertial == nil {
		return base, errors.Errorf("pendulum link %s has no inertial element", bob.Name)
	}
	com, err := bob.Inertial.Origin.Translation()
	if err != nil {
		return base, err
	}
	p.PendulumLength = com.Norm()

	if err := p.Validate(); err != nil {
		return base, errors.Wrapf(err, "arm parameters from URDF model %s", model.Name)
	}
	return p, nil
}
