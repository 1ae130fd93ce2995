// Package main runs the CHUNI Companion REST API server: player lookups,
// rating simulations, the chunirec proxy and the event WebSocket.
//
// Usage:
//
//	apiserver [flags]
//	apiserver service install|uninstall|start|stop|restart|status
//	apiserver store-token
//	apiserver backup [-dir DIR] [-keep N]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ramonehamilton/CHUNI-Companion/internal/config"
	"github.com/ramonehamilton/CHUNI-Companion/internal/storage"
	"github.com/ramonehamilton/CHUNI-Companion/internal/version"
)

// passphraseEnv holds the passphrase for the stored chunirec token.
const passphraseEnv = "CHUNI_COMPANION_PASSPHRASE"

// tokenSecret is the settings name of the encrypted chunirec token.
const tokenSecret = "chunirec_token"

type options struct {
	configPath string
	host       string
	port       int
	dbPath     string
	logLevel   string
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("apiserver", flag.ContinueOnError)
	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "Config file (default: ~/.chuni-companion/config.toml)")
	fs.StringVar(&opts.host, "host", "", "Listen host (overrides config)")
	fs.IntVar(&opts.port, "port", 0, "Listen port (overrides config)")
	fs.StringVar(&opts.dbPath, "db-path", "", "Database path (overrides config)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFrom(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if opts.dbPath != "" {
		cfg.Cache.DBPath = opts.dbPath
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	args := os.Args[1:]
	command := ""
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "service":
		runServiceCommand(args)
		return
	case "store-token":
		if err := runStoreToken(args); err != nil {
			log.Fatalf("Failed to store token: %v", err)
		}
		return
	case "backup":
		if err := runBackup(args); err != nil {
			log.Fatalf("Backup failed: %v", err)
		}
		return
	case "version":
		info := version.Get()
		fmt.Printf("chuni-companion apiserver %s (commit %s, built %s, %s)\n", info.Version, info.Commit, info.BuildDate, info.GoVersion)
		return
	case "":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		os.Exit(2)
	}

	opts, err := parseFlags(args)
	if err != nil {
		os.Exit(2)
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	if err := a.Start(); err != nil {
		a.Close()
		log.Fatalf("Failed to start API server: %v", err)
	}

	fmt.Printf("CHUNI Companion API running at http://%s\n", cfg.Address())
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Stop(ctx)
}

// runStoreToken encrypts the token from CHUNIREC_API_TOKEN (or the -token
// flag) with the passphrase and saves it in the database.
func runStoreToken(args []string) error {
	fs := flag.NewFlagSet("store-token", flag.ExitOnError)
	token := fs.String("token", "", "Token to store (default: $"+config.EnvAPIToken+")")
	dbPath := fs.String("db-path", "", "Database path")
	_ = fs.Parse(args)

	value := strings.TrimSpace(*token)
	if value == "" {
		value = strings.TrimSpace(os.Getenv(config.EnvAPIToken))
	}
	if value == "" {
		return fmt.Errorf("no token given")
	}
	passphrase := os.Getenv(passphraseEnv)
	if passphrase == "" {
		return fmt.Errorf("%s must be set", passphraseEnv)
	}

	path := *dbPath
	if path == "" {
		var err error
		if path, err = storage.DefaultPath(); err != nil {
			return err
		}
	}
	db, err := storage.Open(storage.DefaultConfig(path))
	if err != nil {
		return err
	}
	svc := storage.NewService(db)
	defer func() { _ = svc.Close() }()

	if err := svc.StoreSecret(context.Background(), tokenSecret, value, storage.DefaultEncryptionConfig(passphrase)); err != nil {
		return err
	}
	fmt.Printf("Token stored in %s\n", path)
	return nil
}

// runBackup copies the database into the backup directory and prunes old
// copies.
func runBackup(args []string) error {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	dbPath := fs.String("db-path", "", "Database path")
	dir := fs.String("dir", "", "Backup directory (default: next to the database)")
	keep := fs.Int("keep", 7, "Number of backups to keep; 0 keeps all")
	_ = fs.Parse(args)

	path := *dbPath
	if path == "" {
		var err error
		if path, err = storage.DefaultPath(); err != nil {
			return err
		}
	}
	db, err := storage.Open(storage.DefaultConfig(path))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	out, err := db.Backup(context.Background(), *dir)
	if err != nil {
		return err
	}
	fmt.Printf("Backup written to %s\n", out)

	if *keep > 0 {
		backupDir := *dir
		if backupDir == "" {
			backupDir = db.BackupDir()
		}
		removed, err := storage.PruneBackups(backupDir, *keep)
		if err != nil {
			return err
		}
		if removed > 0 {
			fmt.Printf("Removed %d old backups\n", removed)
		}
	}
	return nil
}
