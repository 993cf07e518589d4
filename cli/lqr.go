package cli

import (
	"github.com/urfave/cli/v2"

	"go.viam.com/balance/control"
)

// LQRAction prints the linear model, the LQR gain and the closed loop spectral radius.
func LQRAction(c *cli.Context) error {
	r, err := newRunner(c)
	if err != nil {
		return err
	}
	name, err := r.envName()
	if err != nil {
		return err
	}
	reg, err := r.design(name)
	if err != nil {
		return err
	}
	rho, err := control.ClosedLoopSpectralRadius(reg.system.A, reg.system.B, reg.gain.K)
	if err != nil {
		return err
	}

	labels := labelsOf(name)
	w := c.App.Writer
	printf(w, "%s model: %s, dt %g", name, reg.source, reg.system.Dt)
	if reg.datasetID != "" {
		printf(w, "dataset: %s", reg.datasetID)
	}
	printf(w, "%s", matrixTable("A", reg.system.A, labels, labels))
	printf(w, "%s", matrixTable("B", reg.system.B, labels, []string{"u"}))
	printf(w, "%s", matrixTable("K", reg.gain.K, []string{"u"}, labels))
	printf(w, "riccati iterations: %d", reg.gain.Iterations)
	printf(w, "closed loop spectral radius: %.6f", rho)
	return nil
}
