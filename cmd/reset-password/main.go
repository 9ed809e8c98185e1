// Command reset-password sets a new password for an account directly in the
// database and signs out its current session.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"go-inventory-ledger/internal/service"
	"go-inventory-ledger/pkg/config"
	"go-inventory-ledger/pkg/database"
	"go-inventory-ledger/pkg/logger"
)

func main() {
	flags := pflag.NewFlagSet("reset-password", pflag.ExitOnError)
	login := flags.StringP("login", "l", "", "username or email of the account")
	password := flags.StringP("password", "p", "", "new password (min 6 characters)")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: reset-password --login <username|email> --password <new password>")
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])

	if *login == "" || *password == "" {
		flags.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: "reset-password",
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	deps := service.NewDeps(db)
	deps.Log = log
	user, err := service.NewUserService(deps).ResetPassword(ctx, *login, *password)
	if err != nil {
		log.Fatal("password reset failed", zap.String("login", *login), zap.Error(err))
	}

	log.Info("password reset", zap.String("username", user.Username), zap.String("email", user.Email))
}
