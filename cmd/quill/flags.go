package main

import (
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

const (
	// DefaultVariant is the classifier mode used when --variant is not set.
	DefaultVariant = "rich"
	// DefaultAddr is the TCP address cmd/quill listens on or dials.
	DefaultAddr = "localhost:7411"
)

// flags returns cmd/quill's CLI flags. All but --dev are also readable
// from an environment variable or from the TOML config file located by
// configFile, mirroring the teacher's layered flag-sourcing convention;
// --dev is command-line only.
func flags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "dev",
			Usage: "human-readable console logging, instead of JSON",
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "one of: listen, dial, loopback",
			Value: "loopback",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("QUILL_MODE"),
				toml.TOML("quill.mode", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "addr",
			Usage: "TCP address to listen on or dial",
			Value: DefaultAddr,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("QUILL_ADDR"),
				toml.TOML("quill.addr", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "variant",
			Usage: "protocol variant: lean or rich",
			Value: DefaultVariant,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("QUILL_VARIANT"),
				toml.TOML("quill.variant", configFilePath),
			),
		},
	}
}
