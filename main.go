// main.go - Main entry point for the Lumen Engine

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "settings.yaml"
	}
	return filepath.Join(dir, "lumen-engine", "settings.yaml")
}

func main() {
	var (
		headless   bool
		fullscreen bool
		verbose    bool
		settings   string
		consoleURL string
		program    string
		sampleRate int
	)

	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.BoolVar(&headless, "headless", false, "Run without audio output or a display window")
	flagSet.BoolVar(&fullscreen, "fullscreen", false, "Operator-free layout: no status surfaces")
	flagSet.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flagSet.StringVar(&settings, "settings", defaultSettingsPath(), "Settings file path")
	flagSet.StringVar(&consoleURL, "ws", "", "Operator console websocket URL")
	flagSet.StringVar(&program, "program", "", "Startup program, e.g. milkdrop:3 or media:/path/clip.wav")
	flagSet.IntVar(&sampleRate, "rate", defaultSampleRate, "Audio sample rate")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: ./lumen_engine [-headless] [-fullscreen] [-settings path] [-ws url] [-program mode:value]")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	setLogVerbose(verbose)

	engine, err := NewEngine(EngineConfig{
		SampleRate:   sampleRate,
		Headless:     headless,
		SettingsPath: settings,
		ConsoleURL:   consoleURL,
	})
	if err != nil {
		fmt.Printf("Failed to initialize engine: %v\n", err)
		os.Exit(1)
	}

	if fullscreen {
		engine.settings.Set(SettingShowStatusBar, "false")
		engine.settings.Set(SettingShowControlPanel, "false")
	}

	engine.Run()

	if program != "" {
		if err := engine.StartProgram(program); err != nil {
			fmt.Printf("Error starting program %q: %v\n", program, err)
		}
	} else if !headless {
		if err := engine.StartProgram(string(ModeBuiltin)); err != nil {
			fmt.Printf("Error starting builtin program: %v\n", err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	engine.Close()
}
