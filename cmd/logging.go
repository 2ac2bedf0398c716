package cmd

import (
	"github.com/urfave/cli"

	"github.com/skanti/vk-raytracing-tutorial-KHR/log"
)

var logger = log.New("vk-raytracing")

func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
