// Package cli provides the command line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/temirov/ctxd/internal/config"
	"github.com/temirov/ctxd/internal/ignore"
	"github.com/temirov/ctxd/internal/index"
	"github.com/temirov/ctxd/internal/types"
	"github.com/temirov/ctxd/internal/utils"
)

const (
	baseFlagName         = "base"
	configFlagName       = "config"
	versionFlagName      = "version"
	formatFlagName       = "format"
	globalFlagName       = "global"
	forceFlagName        = "force"
	versionTemplate      = "ctxd version: %s\n"
	defaultBasePath      = "."
	rootUse              = "ctxd"
	rootShortDescription = "ctxd command line interface"
	rootLongDescription  = `ctxd builds an ignore-rule-aware snapshot of a project tree and packs selected
files into a single text document for language-model consumption.
Use tree to print the project structure, pack to render a selection, check to
explain why a path is excluded, and serve to expose the same operations over HTTP.`
	versionFlagDescription = "display application version"
	baseFlagDescription    = "project base path"
	configFlagDescription  = "configuration file path"

	treeUse              = "tree [path]"
	treeAlias            = "t"
	treeShortDescription = "display the project structure (" + treeAlias + ")"
	// treeLongDescription provides detailed help for the tree command.
	treeLongDescription = `Build the ignore-filtered project tree for the base path and print it.
Use --format to select raw or json output.`
	// treeUsageExample demonstrates tree command usage.
	treeUsageExample = `  # Print the tree of the current project
  ctxd tree

  # Render a subdirectory as JSON
  ctxd tree --format json ./src`

	checkUse              = "check <path>"
	checkShortDescription = "explain the exclusion decision for a path"
	// checkLongDescription provides detailed help for the check command.
	checkLongDescription = `Report whether a path is excluded from processing, whether it exists, and the
ignore patterns whose globs match it.`
	// checkUsageExample demonstrates check command usage.
	checkUsageExample = `  # Explain why a build artifact is excluded
  ctxd check build/app.log`

	initUse              = "init"
	initShortDescription = "write a default configuration file"
	// initLongDescription provides detailed help for the init command.
	initLongDescription = `Write the default ` + utils.ConfigFileName + ` configuration file into the working
directory, or into the global configuration directory with --global.`
	initializedConfigurationFormat = "configuration written to %s\n"

	formatRaw             = "raw"
	formatJSON            = "json"
	formatFlagDescription = "output format (raw or json)"
	globalFlagDescription = "write the global configuration file"
	forceFlagDescription  = "overwrite an existing configuration file"

	rawTreeIndent          = "  "
	rawTreeDirectorySuffix = "/"

	invalidFormatMessage        = "Invalid format value '%s'"
	workingDirectoryErrorFormat = "unable to determine working directory: %w"
	// errorAbsolutePathFormat reports failure to resolve an absolute path.
	errorAbsolutePathFormat = "abs failed for '%s': %w"
	// errorBaseMissingFormat reports a missing base path.
	errorBaseMissingFormat = "base path '%s' does not exist"
	// errorBaseNotDirectoryFormat reports a base path that is not a directory.
	errorBaseNotDirectoryFormat = "base path '%s' is not a directory"
	// errorRenderJSONFormat reports a JSON encoding failure.
	errorRenderJSONFormat = "encode output: %w"
)

// rootOptions carries the persistent root flag values shared by subcommands.
type rootOptions struct {
	basePath   string
	configPath string
}

// isSupportedFormat reports whether the provided format is recognized.
func isSupportedFormat(format string) bool {
	switch format {
	case formatRaw, formatJSON:
		return true
	default:
		return false
	}
}

// Execute runs the ctxd application.
func Execute() error {
	rootCommand := createRootCommand()
	rootCommand.SetArgs(normalizeCopyFlagArguments(os.Args[1:]))
	return rootCommand.Execute()
}

// createRootCommand builds the root Cobra command.
func createRootCommand() *cobra.Command {
	var showVersion bool
	var options rootOptions

	rootCommand := &cobra.Command{
		Use:          rootUse,
		Short:        rootShortDescription,
		Long:         rootLongDescription,
		SilenceUsage: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
		PersistentPreRun: func(command *cobra.Command, arguments []string) {
			if showVersion {
				fmt.Printf(versionTemplate, utils.GetApplicationVersion())
				os.Exit(0)
			}
		},
	}
	rootCommand.PersistentFlags().BoolVar(&showVersion, versionFlagName, false, versionFlagDescription)
	rootCommand.PersistentFlags().StringVar(&options.basePath, baseFlagName, defaultBasePath, baseFlagDescription)
	rootCommand.PersistentFlags().StringVar(&options.configPath, configFlagName, "", configFlagDescription)
	rootCommand.AddCommand(
		createTreeCommand(&options),
		createPackCommand(&options),
		createCheckCommand(&options),
		createServeCommand(&options),
		createInitCommand(&options),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

// loadConfiguration resolves the layered application configuration for the
// current working directory and the optional explicit configuration file.
func loadConfiguration(options *rootOptions) (config.ApplicationConfiguration, error) {
	workingDirectory, workingDirectoryError := os.Getwd()
	if workingDirectoryError != nil {
		return config.ApplicationConfiguration{}, fmt.Errorf(workingDirectoryErrorFormat, workingDirectoryError)
	}
	return config.LoadApplicationConfiguration(config.LoadOptions{
		WorkingDirectory: workingDirectory,
		ExplicitFilePath: options.configPath,
	})
}

// resolveProjectBase converts basePath to absolute form and validates that it
// names an existing directory.
func resolveProjectBase(basePath string) (string, error) {
	absoluteBasePath, absolutePathError := filepath.Abs(basePath)
	if absolutePathError != nil {
		return "", fmt.Errorf(errorAbsolutePathFormat, basePath, absolutePathError)
	}
	baseInfo, baseStatError := os.Stat(absoluteBasePath)
	if baseStatError != nil {
		return "", fmt.Errorf(errorBaseMissingFormat, basePath)
	}
	if !baseInfo.IsDir() {
		return "", fmt.Errorf(errorBaseNotDirectoryFormat, basePath)
	}
	return absoluteBasePath, nil
}

// newResolver builds an ignore resolver honoring configured ignore file names.
func newResolver(configuration config.ApplicationConfiguration) *ignore.Resolver {
	return ignore.NewResolver(ignore.Options{
		GitignoreFileName: configuration.Paths.GitignoreFile,
		IgnoreFileName:    configuration.Paths.IgnoreFile,
	})
}

// buildOptionsFromConfiguration translates configured traversal bounds,
// leaving component defaults in place for unset values.
func buildOptionsFromConfiguration(configuration config.IndexConfiguration) index.BuildOptions {
	options := index.BuildOptions{}
	if configuration.Workers != nil {
		options.Workers = *configuration.Workers
	}
	if configuration.ParallelDepth != nil {
		options.ParallelDepth = *configuration.ParallelDepth
	}
	return options
}

// createTreeCommand returns the tree subcommand.
func createTreeCommand(options *rootOptions) *cobra.Command {
	var outputFormat string = formatRaw

	treeCommand := &cobra.Command{
		Use:     treeUse,
		Aliases: []string{treeAlias},
		Short:   treeShortDescription,
		Long:    treeLongDescription,
		Example: treeUsageExample,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			outputFormatLower := strings.ToLower(outputFormat)
			if !isSupportedFormat(outputFormatLower) {
				return fmt.Errorf(invalidFormatMessage, outputFormatLower)
			}
			basePath := options.basePath
			if len(arguments) == 1 {
				basePath = arguments[0]
			}
			configuration, configurationError := loadConfiguration(options)
			if configurationError != nil {
				return configurationError
			}
			absoluteBasePath, baseError := resolveProjectBase(basePath)
			if baseError != nil {
				return baseError
			}

			resolver := newResolver(configuration)
			rootNode, buildError := index.BuildTree(command.Context(), absoluteBasePath, resolver, buildOptionsFromConfiguration(configuration.Index))
			if buildError != nil {
				return buildError
			}
			return renderTree(command, rootNode, outputFormatLower)
		},
	}

	treeCommand.Flags().StringVar(&outputFormat, formatFlagName, formatRaw, formatFlagDescription)
	return treeCommand
}

// renderTree writes the tree in the requested format to the command output.
func renderTree(command *cobra.Command, rootNode *types.TreeNode, format string) error {
	if format == formatJSON {
		encodedTree, encodeError := json.MarshalIndent(rootNode, "", "  ")
		if encodeError != nil {
			return fmt.Errorf(errorRenderJSONFormat, encodeError)
		}
		fmt.Fprintln(command.OutOrStdout(), string(encodedTree))
		return nil
	}
	fmt.Fprint(command.OutOrStdout(), renderTreeRaw(rootNode))
	return nil
}

// renderTreeRaw renders the tree as indented lines, one entry per line, with
// directories suffixed by a separator.
func renderTreeRaw(rootNode *types.TreeNode) string {
	var builder strings.Builder
	appendTreeLines(&builder, rootNode, 0)
	return builder.String()
}

func appendTreeLines(builder *strings.Builder, node *types.TreeNode, depth int) {
	builder.WriteString(strings.Repeat(rawTreeIndent, depth))
	builder.WriteString(node.Name)
	if node.Kind == types.NodeKindDirectory {
		builder.WriteString(rawTreeDirectorySuffix)
	}
	builder.WriteString("\n")
	for _, childNode := range node.Children {
		appendTreeLines(builder, childNode, depth+1)
	}
}

// createCheckCommand returns the check subcommand.
func createCheckCommand(options *rootOptions) *cobra.Command {
	checkCommand := &cobra.Command{
		Use:     checkUse,
		Short:   checkShortDescription,
		Long:    checkLongDescription,
		Example: checkUsageExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			configuration, configurationError := loadConfiguration(options)
			if configurationError != nil {
				return configurationError
			}
			absoluteBasePath, baseError := resolveProjectBase(options.basePath)
			if baseError != nil {
				return baseError
			}

			checkedPath := arguments[0]
			absoluteCheckedPath := checkedPath
			if !filepath.IsAbs(absoluteCheckedPath) {
				absoluteCheckedPath = filepath.Join(absoluteBasePath, filepath.FromSlash(checkedPath))
			}

			lookup := newResolver(configuration).Lookup(absoluteBasePath)
			diagnostic := lookup.Diagnose(absoluteCheckedPath)
			encodedDiagnostic, encodeError := json.MarshalIndent(diagnostic, "", "  ")
			if encodeError != nil {
				return fmt.Errorf(errorRenderJSONFormat, encodeError)
			}
			fmt.Fprintln(command.OutOrStdout(), string(encodedDiagnostic))
			return nil
		},
	}
	return checkCommand
}

// createInitCommand returns the init subcommand.
func createInitCommand(options *rootOptions) *cobra.Command {
	var writeGlobal bool
	var forceOverwrite bool

	initCommand := &cobra.Command{
		Use:   initUse,
		Short: initShortDescription,
		Long:  initLongDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			target := config.InitTargetLocal
			if writeGlobal {
				target = config.InitTargetGlobal
			}
			writtenPath, initializeError := config.InitializeConfiguration(config.InitOptions{
				Target: target,
				Force:  forceOverwrite,
			})
			if initializeError != nil {
				return initializeError
			}
			fmt.Fprintf(command.OutOrStdout(), initializedConfigurationFormat, writtenPath)
			return nil
		},
	}

	initCommand.Flags().BoolVar(&writeGlobal, globalFlagName, false, globalFlagDescription)
	initCommand.Flags().BoolVar(&forceOverwrite, forceFlagName, false, forceFlagDescription)
	return initCommand
}

// commandContext returns the command's context, falling back to Background
// when the command was built outside Execute.
func commandContext(command *cobra.Command) context.Context {
	if commandCtx := command.Context(); commandCtx != nil {
		return commandCtx
	}
	return context.Background()
}
