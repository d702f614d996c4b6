package main

import (
	"fmt"
	"os"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/user"
	emailsvc "github.com/trezcool/aula/services/email"
	logsvc "github.com/trezcool/aula/services/logger"
	"github.com/trezcool/aula/storage/database"
	sqlxrepos "github.com/trezcool/aula/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.RoleAdmin, os.Stdout, conf)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:     db,
		usrSvc: user.NewService(db, sqlxrepos.NewUserRepository(), emailsvc.NewConsoleService(conf, logger), conf, logger),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		os.Exit(1)
	}
}
