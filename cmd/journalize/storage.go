package main

import (
	"fmt"

	storagedental "github.com/dentalrpa/journalize/subsystem/dental/storage"
	storagedentalinmem "github.com/dentalrpa/journalize/subsystem/dental/storage/inmem"
	storagedentalmysql "github.com/dentalrpa/journalize/subsystem/dental/storage/mysql"
	storagestatus "github.com/dentalrpa/journalize/subsystem/status/storage"
	storagestatusdiskv "github.com/dentalrpa/journalize/subsystem/status/storage/diskv"
	storagestatusinmem "github.com/dentalrpa/journalize/subsystem/status/storage/inmem"
	storagestatusmysql "github.com/dentalrpa/journalize/subsystem/status/storage/mysql"

	_ "github.com/go-sql-driver/mysql"
)

type storageConfig struct {
	status storagestatus.Storage
	dental storagedental.Storage
}

func parseStorage(name, dsn string) (*storageConfig, error) {
	switch name {
	case "inmem":
		return &storageConfig{
			status: storagestatusinmem.New(),
			dental: storagedentalinmem.New(),
		}, nil
	case "file", "diskv":
		if dsn == "" {
			dsn = "db"
		}
		// no file-backed dental records store exists; the target
		// system is only reachable over MySQL, so file storage keeps
		// an in-memory dental store for demo deployments
		return &storageConfig{
			status: storagestatusdiskv.New(dsn),
			dental: storagedentalinmem.New(),
		}, nil
	case "mysql":
		status, err := storagestatusmysql.New(storagestatusmysql.WithDSN(dsn))
		if err != nil {
			return nil, err
		}
		dental, err := storagedentalmysql.New(storagedentalmysql.WithDSN(dsn))
		if err != nil {
			return nil, err
		}
		return &storageConfig{
			status: status,
			dental: dental,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage: %s", name)
}
