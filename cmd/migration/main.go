package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"gitlab.com/dirk.krummacker/person-service/internal/config"
	"gitlab.com/dirk.krummacker/person-service/internal/logging"
	"gitlab.com/dirk.krummacker/person-service/internal/migration"
	"gitlab.com/dirk.krummacker/person-service/internal/store"
)

const usage = `usage: migration <command>

commands:
  up          apply all pending migrations
  down [N]    roll back N migrations (default 1)
  version     print the current schema version
  force V     set the schema version to V without running migrations
`

// Usage example on the command line:
// > DBHOST=localhost DBUSER=dirk DBPWD=bullo92 go run main.go up
func main() {
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := config.LoadDotEnv(); err != nil {
		logrus.WithError(err).Fatal("could not load .env file")
	}
	cfg, err := config.FromEnv()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := logging.New(cfg.LogLevel, "text")

	sqlDB, err := store.CreateDatabase(context.Background(), cfg)
	if err != nil {
		logger.WithError(err).Fatal("could not connect to database")
	}
	mg, err := migration.New(sqlDB, cfg.DBDriver, logger)
	if err != nil {
		logger.WithError(err).Fatal("could not load migrations")
	}
	err = run(mg, flag.Args())
	if errClose := mg.Close(); errClose != nil {
		logger.WithError(errClose).Warn("could not close database")
	}
	if err != nil {
		logger.WithError(err).Fatal("migration failed")
	}
}

func run(mg *migration.Migrator, args []string) error {
	switch args[0] {
	case "up":
		return mg.Up()
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid number of steps %q", args[1])
			}
			steps = n
		}
		return mg.Down(steps)
	case "version":
		version, dirty, err := mg.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		return nil
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("force needs a version")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		return mg.Force(v)
	}
	return fmt.Errorf("unknown command %q", args[0])
}
