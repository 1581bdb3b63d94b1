package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/airbusgeo/godal"
	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/forest-guardian/poseidon/internal/delivery"
	"github.com/forest-guardian/poseidon/internal/properties"
	"github.com/forest-guardian/poseidon/internal/sentinel"
	"github.com/sirupsen/logrus"
)

const (
	exitSetupFailure = 1
	exitAllFailed    = 2
)

func printBanner() {
	figure1 := figure.NewFigure("Poseidon", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	fmt.Println()
}

func newLogger(level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

func run() int {
	defer func() {
		if r := recover(); r != nil {
			pc, file, line, ok := runtime.Caller(3)
			location := "Unknown location"
			if ok {
				location = fmt.Sprintf("%s:%d in %s", file, line, runtime.FuncForPC(pc).Name())
			}
			bannercolor.Red("PANIC: %v", r)
			bannercolor.Red("Location: %s", location)
			fmt.Fprintf(os.Stderr, "%s\n", debug.Stack())
			os.Exit(exitSetupFailure)
		}
	}()

	if envFile := properties.LoadEnvFile(); envFile != "" {
		bannercolor.Green("Loaded environment from %s", envFile)
	} else {
		bannercolor.Yellow("No .env file found. Using environment and defaults.")
	}

	cfg, err := properties.Load()
	if err != nil {
		bannercolor.Red("Invalid configuration: %s", err.Error())
		return exitSetupFailure
	}
	logger := newLogger(cfg.LogLevel)

	godal.RegisterAll()

	pipeline := delivery.NewPipeline(cfg, sentinel.GodalOpener{}, logger)
	summary, err := pipeline.Run()
	if err != nil {
		logger.WithError(err).Error("Cannot start processing")
		return exitSetupFailure
	}

	fmt.Println()
	switch cfg.SummaryFormat {
	case properties.SummaryCSV:
		if err := summary.WriteCSV(os.Stdout); err != nil {
			logger.WithError(err).Error("Failed to write summary")
		}
	default:
		summary.Print(os.Stdout)
	}

	if summary.AllFailed() {
		return exitAllFailed
	}
	return 0
}

func main() {
	printBanner()
	os.Exit(run())
}
