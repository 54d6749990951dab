package main

import (
	"database/sql"

	"github.com/trezcool/safiri/storage/database"
)

var migrateFunc = database.RunMigration // mockable

func (cli *commandLine) migrate(args []string) error {
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	var db *sql.DB
	if cli.db.DB != nil {
		db = cli.db.DB.DB
	}
	return migrateFunc(args[0], db, arguments...)
}
