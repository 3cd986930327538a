package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/ctxd/internal/aggregate"
	"github.com/temirov/ctxd/internal/index"
	"github.com/temirov/ctxd/internal/services/web"
	"github.com/temirov/ctxd/internal/utils"
)

const (
	serveUse              = "serve"
	serveShortDescription = "serve the project snapshot and selection processing over HTTP"
	// serveLongDescription provides detailed help for the serve command.
	serveLongDescription = `Start an HTTP service exposing the ignore-filtered project structure, index
lifecycle controls, exclusion diagnostics, and selection processing for the
base path. The service runs until interrupted.`
	// serveUsageExample demonstrates serve command usage.
	serveUsageExample = `  # Serve the current project on the default address
  ctxd serve

  # Serve another project and rebuild on ignore file edits
  ctxd serve --base ../backend --watch`

	addressFlagName        = "address"
	watchFlagName          = "watch"
	addressFlagDescription = "TCP listen address"
	watchFlagDescription   = "rebuild the index when ignore files change"

	logMessageServing = "serving"
	logFieldAddress   = "address"
)

// createServeCommand returns the serve subcommand.
func createServeCommand(options *rootOptions) *cobra.Command {
	var listenAddress string
	var watchEnabled bool

	serveCommand := &cobra.Command{
		Use:     serveUse,
		Short:   serveShortDescription,
		Long:    serveLongDescription,
		Example: serveUsageExample,
		Args:    cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			configuration, configurationError := loadConfiguration(options)
			if configurationError != nil {
				return configurationError
			}
			absoluteBasePath, baseError := resolveProjectBase(options.basePath)
			if baseError != nil {
				return baseError
			}

			resolvedAddress := listenAddress
			if !command.Flags().Changed(addressFlagName) && configuration.Serve.Address != "" {
				resolvedAddress = configuration.Serve.Address
			}
			resolvedWatch := watchEnabled
			if !command.Flags().Changed(watchFlagName) && configuration.Serve.Watch != nil {
				resolvedWatch = *configuration.Serve.Watch
			}

			serviceLogger, loggerError := utils.NewServiceLogger()
			if loggerError != nil {
				return fmt.Errorf(utils.LoggerInitializationFailedMessageFormat, loggerError)
			}
			defer func() {
				_ = serviceLogger.Sync()
			}()

			resolver := newResolver(configuration)
			indexOptions := index.Options{
				Build:  buildOptionsFromConfiguration(configuration.Index),
				Logger: serviceLogger,
			}
			if configuration.Index.TTLHours != nil {
				indexOptions.TTL = time.Duration(*configuration.Index.TTLHours) * time.Hour
			}
			aggregatorOptions := aggregate.Options{}
			if configuration.Pack.MaxFileSizeMiB != nil {
				aggregatorOptions.MaxFileSize = int64(*configuration.Pack.MaxFileSizeMiB) * bytesPerMebibyte
			}

			server := web.NewServer(web.Config{
				Address:    resolvedAddress,
				BasePath:   absoluteBasePath,
				Resolver:   resolver,
				Index:      index.New(resolver, indexOptions),
				Aggregator: aggregate.New(resolver, aggregatorOptions),
				Watch:      resolvedWatch,
				Logger:     serviceLogger,
			})

			serveContext, stopSignals := signal.NotifyContext(commandContext(command), os.Interrupt, syscall.SIGTERM)
			defer stopSignals()
			return server.Run(serveContext, func(boundAddress string) {
				serviceLogger.Info(logMessageServing, zap.String(logFieldAddress, boundAddress))
			})
		},
	}

	serveCommand.Flags().StringVar(&listenAddress, addressFlagName, "", addressFlagDescription)
	serveCommand.Flags().BoolVar(&watchEnabled, watchFlagName, false, watchFlagDescription)
	return serveCommand
}
