package main

import (
	"fmt"

	"github.com/joho/godotenv"

	"github.com/temirov/ctxd/internal/cli"
	"github.com/temirov/ctxd/internal/utils"
)

// main is the entry point for the ctxd command.
func main() {
	_ = godotenv.Load()
	loggerInstance, loggerInitializationError := utils.NewApplicationLogger()
	if loggerInitializationError != nil {
		panic(fmt.Errorf(utils.LoggerInitializationFailedMessageFormat, loggerInitializationError))
	}
	defer loggerInstance.Sync()
	if applicationExecutionError := cli.Execute(); applicationExecutionError != nil {
		loggerInstance.Fatal(utils.ApplicationExecutionFailedMessage + ": " + applicationExecutionError.Error())
	}
}
