// Package cli contains the balance command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

// Flags.
const (
	flagConfig   = "config"
	flagDebug    = "debug"
	flagLogLevel = "log-level"
	flagDB       = "db"
	flagEnv      = "env"
	flagDataset  = "dataset"
	flagSamples  = "samples"
	flagPolicy   = "policy"
	flagEpisodes = "episodes"
	flagPlot     = "plot"
	flagHTML     = "html"
	flagTheta    = "theta"
	flagNoSave   = "no-save"

	policyLQR    = "lqr"
	policyRandom = "random"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  flagEnv,
		Usage: "environment to use: cartpole or armpendulum, defaults to the sysid env of the config",
	}
}

func datasetFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  flagDataset,
		Usage: "id of a stored dataset to fit instead of sampling a new one",
	}
}

func plotFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  flagPlot,
			Usage: "write a PNG of the first episode to `FILE`",
		},
		&cli.StringFlag{
			Name:  flagHTML,
			Usage: "write an interactive chart of the first episode to `FILE`",
		},
	}
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "balance",
		Usage:           "identify, design and evaluate balancing controllers",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE` (json or yaml)",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Value: "info",
				Usage: "minimum level of log lines: debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  flagDB,
				Value: "balance.db",
				Usage: "sqlite database storing datasets and runs",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "sample",
				Usage: "collect a dataset with a uniformly random policy and store it",
				Flags: []cli.Flag{
					envFlag(),
					&cli.IntFlag{
						Name:  flagSamples,
						Usage: "number of transitions, defaults to the sysid samples of the config",
					},
				},
				Action: SampleAction,
			},
			{
				Name:   "fit",
				Usage:  "fit a local linear model by least squares and print its coefficients",
				Flags:  []cli.Flag{envFlag(), datasetFlag()},
				Action: FitAction,
			},
			{
				Name:   "lqr",
				Usage:  "print the linear model, the LQR gain and the closed loop spectral radius",
				Flags:  []cli.Flag{envFlag(), datasetFlag()},
				Action: LQRAction,
			},
			{
				Name:  "cartpole",
				Usage: "evaluate a policy on cart-pole episodes",
				Flags: append([]cli.Flag{
					datasetFlag(),
					&cli.StringFlag{
						Name:  flagPolicy,
						Value: policyLQR,
						Usage: "policy to evaluate: lqr or random",
					},
					&cli.IntFlag{
						Name:  flagEpisodes,
						Usage: "number of episodes, defaults to the rollout episodes of the config",
					},
					&cli.BoolFlag{
						Name:  flagNoSave,
						Usage: "do not record the run in the database",
					},
				}, plotFlags()...),
				Action: CartPoleAction,
			},
			{
				Name:  "arm",
				Usage: "balance the pendulum on the arm with a real time control loop",
				Flags: append([]cli.Flag{
					datasetFlag(),
					&cli.Float64Flag{
						Name:  flagTheta,
						Value: 0.05,
						Usage: "initial pendulum angle in radians",
					},
					&cli.BoolFlag{
						Name:  flagNoSave,
						Usage: "do not record the run in the database",
					},
				}, plotFlags()...),
				Action: ArmAction,
			},
			{
				Name:   "runs",
				Usage:  "list recorded runs",
				Flags:  []cli.Flag{envFlag()},
				Action: RunsAction,
			},
		},
	}
}
