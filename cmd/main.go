package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"ratewatch/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		logrus.WithError(err).Error("Application terminated with error")
		os.Exit(1)
	}
}
