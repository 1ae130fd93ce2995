package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kardianos/service"
)

// serverProgram runs the API server under the platform service manager.
type serverProgram struct {
	args []string
	app  *app
}

// Start implements service.Interface. It must not block.
func (p *serverProgram) Start(s service.Service) error {
	opts, err := parseFlags(p.args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		a.Close()
		return err
	}
	p.app = a
	return nil
}

// Stop implements service.Interface.
func (p *serverProgram) Stop(s service.Service) error {
	if p.app == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.app.Stop(ctx)
	return nil
}

func getServiceConfig(args []string) *service.Config {
	return &service.Config{
		Name:        "CHUNICompanionAPI",
		DisplayName: "CHUNI Companion API",
		Description: "Rating simulation and chunirec proxy server for CHUNI Companion",
		Arguments:   append([]string{"service", "run"}, args...),
	}
}

const serviceUsage = "Usage: apiserver service [install|uninstall|start|stop|restart|status|run] [server flags]"

// runServiceCommand handles service management commands. Flags after the
// action are passed to the installed service.
func runServiceCommand(args []string) {
	if len(args) < 1 {
		fmt.Println(serviceUsage)
		os.Exit(1)
	}
	action, rest := args[0], args[1:]

	prg := &serverProgram{args: rest}
	svcConfig := getServiceConfig(rest)
	s, err := service.New(prg, svcConfig)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	switch action {
	case "run":
		if err := s.Run(); err != nil {
			log.Fatalf("Service failed: %v", err)
		}

	case "install":
		if err := s.Install(); err != nil {
			log.Fatalf("Failed to install service: %v", err)
		}
		fmt.Println("✓ Service installed successfully")
		fmt.Println("\nNext steps:")
		fmt.Println("  1. Start the service: apiserver service start")
		fmt.Println("  2. Verify it's running: apiserver service status")

	case "uninstall":
		if err := s.Uninstall(); err != nil {
			log.Fatalf("Failed to uninstall service: %v", err)
		}
		fmt.Println("✓ Service uninstalled successfully")

	case "start":
		if err := s.Start(); err != nil {
			log.Fatalf("Failed to start service: %v", err)
		}
		fmt.Println("✓ Service started successfully")

	case "stop":
		if err := s.Stop(); err != nil {
			log.Fatalf("Failed to stop service: %v", err)
		}
		fmt.Println("✓ Service stopped successfully")

	case "restart":
		if err := s.Restart(); err != nil {
			log.Fatalf("Failed to restart service: %v", err)
		}
		fmt.Println("✓ Service restarted successfully")

	case "status":
		status, err := s.Status()
		if err != nil {
			log.Fatalf("Failed to get service status: %v", err)
		}
		fmt.Println("Service Status:")
		switch status {
		case service.StatusRunning:
			fmt.Println("  Status: ✓ Running")
		case service.StatusStopped:
			fmt.Println("  Status: ● Stopped")
		default:
			fmt.Println("  Status: ? Unknown")
		}
		fmt.Printf("  Name: %s\n", svcConfig.Name)

	default:
		fmt.Printf("Unknown service command: %s\n", action)
		fmt.Println(serviceUsage)
		os.Exit(1)
	}
}
