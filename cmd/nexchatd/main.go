package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pbraga/nexchat/internal/config"
	"github.com/pbraga/nexchat/internal/daemon"
	"github.com/pbraga/nexchat/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	serverFlag := flag.String("server", "", "chat server base URL (overrides config)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	serverURL := cfg.ServerURL
	if *serverFlag != "" {
		serverURL = *serverFlag
	}

	app := fx.New(
		daemon.Module(daemon.Params{ProfileName: profileName, ServerURL: serverURL}),
	)

	app.Run()
}
