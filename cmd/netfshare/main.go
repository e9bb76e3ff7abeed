package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jgivc/netfshare/internal/app"
	"github.com/jgivc/netfshare/internal/config"
	"github.com/joho/godotenv"
)

const defaultConfigFileName = "config.yml"

func main() {
	cfgFileName := flag.String("c", "", "Path to config file (default: config.yml in the working directory, if any)")
	initCfg := flag.Bool("init", false, "Write a default config file to -c and exit")
	force := flag.Bool("force", false, "Overwrite an existing config file with -init")
	flag.Parse()

	if *initCfg {
		fileName := *cfgFileName
		if fileName == "" {
			fileName = defaultConfigFileName
		}

		if err := config.WriteDefault(fileName, *force); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot write config: %s\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config written to %s\n", fileName)

		return
	}

	// .env is optional, its values never override the real environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Cannot load .env: %s\n", err)
		os.Exit(1)
	}

	app := app.New(*cfgFileName)
	if err := app.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot start: %s\n", err)
		os.Exit(1)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	for sig := range c {
		switch sig {
		case syscall.SIGUSR1:
			go app.Reconcile()
		case syscall.SIGUSR2:
			go app.Dump()
		case syscall.SIGTERM, syscall.SIGINT:
			fmt.Println("Received termination signal. Shutting down...")
			signal.Stop(c)
			app.Stop()
			fmt.Println("done")

			return
		}
	}
}
