// Command seed loads the seller roster, generates every seller's block of
// raffle tickets and optionally provisions a treasury login.  It reads the
// same environment as the server and can be re-run safely.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/iliyamo/raffle-ticket-sales/internal/config"
	"github.com/iliyamo/raffle-ticket-sales/internal/database"
	"github.com/iliyamo/raffle-ticket-sales/internal/model"
	"github.com/iliyamo/raffle-ticket-sales/internal/repository"
	"github.com/iliyamo/raffle-ticket-sales/internal/seed"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	var (
		rosterPath   string
		allotment    int
		width        int
		first        int
		treasurer    string
		treasurerPwd string
	)
	flagSet := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	flagSet.StringVar(&rosterPath, "roster", "", "path to the roster CSV (name,cpf,email)")
	flagSet.IntVar(&allotment, "allotment", cfg.TicketAllotment, "tickets per seller")
	flagSet.IntVar(&width, "width", cfg.TicketNumberWidth, "digits of a ticket number")
	flagSet.IntVar(&first, "first", 0, "first ticket number")
	flagSet.StringVar(&treasurer, "treasurer-email", "", "create a TREASURER login with this e-mail")
	flagSet.StringVar(&treasurerPwd, "treasurer-password", os.Getenv("TREASURER_PASSWORD"), "password for --treasurer-email")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rosterPath == "" && treasurer == "" {
		return errors.New("nothing to do: pass --roster and/or --treasurer-email")
	}

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort,
		Name: cfg.DBName, MaxConns: 4,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := database.InitializeSchema(ctx, db); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}

	if rosterPath != "" {
		f, err := os.Open(rosterPath)
		if err != nil {
			return err
		}
		roster, err := seed.ReadRoster(f)
		f.Close()
		if err != nil {
			return err
		}
		loader := &seed.Loader{
			Tx:      repository.NewTxManager(db),
			Sellers: repository.NewSellerRepo(db),
			Tickets: repository.NewTicketRepo(db),
			Log:     logger,
		}
		if _, err := loader.Load(ctx, roster, seed.Options{Allotment: allotment, Width: width, First: first}); err != nil {
			return err
		}
	}

	if treasurer != "" {
		if len(treasurerPwd) < 8 {
			return errors.New("--treasurer-password must have at least 8 characters")
		}
		users := repository.NewUserRepo(db)
		id, err := users.Create(ctx, treasurer, treasurerPwd, model.RoleTreasurer, cfg.BcryptCost)
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			logger.Info().Str("email", treasurer).Msg("treasurer already exists")
		case err != nil:
			return fmt.Errorf("create treasurer: %w", err)
		default:
			logger.Info().Uint64("user_id", id).Str("email", treasurer).Msg("treasurer created")
		}
	}
	return nil
}
