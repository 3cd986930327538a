package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/temirov/ctxd/internal/aggregate"
	"github.com/temirov/ctxd/internal/config"
	"github.com/temirov/ctxd/internal/services/clipboard"
	"github.com/temirov/ctxd/internal/tokenizer"
	"github.com/temirov/ctxd/internal/utils"
)

const (
	packUse              = "pack [paths...]"
	packAlias            = "p"
	packShortDescription = "pack selected files into a single document (" + packAlias + ")"
	// packLongDescription provides detailed help for the pack command.
	packLongDescription = `Expand the selected files and directories into an ignore-filtered file list
and render their content as one concatenated document on stdout.
Paths are interpreted relative to the base path; directories are walked
recursively with excluded subtrees pruned.`
	// packUsageExample demonstrates pack command usage.
	packUsageExample = `  # Pack two sources and copy the document to the clipboard
  ctxd pack --copy src/main.py README.md

  # Pack a manifest selection with token totals
  ctxd pack --manifest pack.yaml --tokens`

	manifestFlagName          = "manifest"
	copyFlagName              = "copy"
	tokensFlagName            = "tokens"
	modelFlagName             = "model"
	outFlagName               = "out"
	manifestFlagDescription   = "YAML manifest listing selection paths"
	copyFlagDescription       = "copy the rendered document to the system clipboard"
	tokensFlagDescription     = "print document totals with a token estimate to stderr"
	modelFlagDescription      = "tokenizer model to use for token counting"
	outFlagDescription        = "write the document to a file instead of stdout"
	defaultTokenizerModelName = "gpt-4o"

	packTotalsFormat = "packed %d files, %s, %d tokens (%s)\n"
	// errorWriteDocumentFormat reports a failure writing the output file.
	errorWriteDocumentFormat       = "write document to %s: %w"
	clipboardServiceMissingMessage = "clipboard service unavailable"

	bytesPerMebibyte = 1024 * 1024
)

// packCommandOptions carries everything one pack run needs, so the execution
// path can be driven without a cobra command.
type packCommandOptions struct {
	Selections    []string
	BasePath      string
	Aggregator    *aggregate.Aggregator
	TokensEnabled bool
	CopyEnabled   bool
	Clipboard     clipboard.Writer
	OutputPath    string
	Writer        io.Writer
	ErrorWriter   io.Writer
}

// createPackCommand returns the pack subcommand.
func createPackCommand(options *rootOptions) *cobra.Command {
	var manifestPath string
	var copyEnabled bool
	var tokensEnabled bool
	var tokenizerModel string
	var outputPath string

	packCommand := &cobra.Command{
		Use:     packUse,
		Aliases: []string{packAlias},
		Short:   packShortDescription,
		Long:    packLongDescription,
		Example: packUsageExample,
		Args:    cobra.ArbitraryArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			configuration, configurationError := loadConfiguration(options)
			if configurationError != nil {
				return configurationError
			}
			absoluteBasePath, baseError := resolveProjectBase(options.basePath)
			if baseError != nil {
				return baseError
			}

			selections := append([]string{}, arguments...)
			if manifestPath != "" {
				manifestSelections, manifestError := loadSelectionManifest(manifestPath)
				if manifestError != nil {
					return manifestError
				}
				selections = append(selections, manifestSelections...)
			}
			selections = utils.DeduplicateStrings(selections)
			if len(selections) == 0 {
				selections = []string{defaultBasePath}
			}

			aggregatorOptions := aggregate.Options{}
			if configuration.Pack.MaxFileSizeMiB != nil {
				aggregatorOptions.MaxFileSize = int64(*configuration.Pack.MaxFileSizeMiB) * bytesPerMebibyte
			}
			resolvedTokens := resolveTokenSettings(command, tokensEnabled, tokenizerModel, configuration.Pack.Tokens)
			if resolvedTokens.enabled {
				tokenCounter, resolvedModel, counterError := tokenizer.NewCounter(tokenizer.Config{Model: resolvedTokens.model})
				if counterError != nil {
					return counterError
				}
				aggregatorOptions.TokenCounter = tokenCounter
				aggregatorOptions.TokenModel = resolvedModel
			}

			resolvedCopy := copyEnabled
			if !command.Flags().Changed(copyFlagName) && configuration.Pack.Clipboard != nil {
				resolvedCopy = *configuration.Pack.Clipboard
			}

			return runPackCommand(commandContext(command), packCommandOptions{
				Selections:    selections,
				BasePath:      absoluteBasePath,
				Aggregator:    aggregate.New(newResolver(configuration), aggregatorOptions),
				TokensEnabled: resolvedTokens.enabled,
				CopyEnabled:   resolvedCopy,
				Clipboard:     clipboard.NewService(),
				OutputPath:    outputPath,
				Writer:        command.OutOrStdout(),
				ErrorWriter:   command.ErrOrStderr(),
			})
		},
	}

	packCommand.Flags().StringVar(&manifestPath, manifestFlagName, "", manifestFlagDescription)
	registerCopyFlag(packCommand.Flags(), &copyEnabled)
	packCommand.Flags().BoolVar(&tokensEnabled, tokensFlagName, false, tokensFlagDescription)
	packCommand.Flags().StringVar(&tokenizerModel, modelFlagName, defaultTokenizerModelName, modelFlagDescription)
	packCommand.Flags().StringVar(&outputPath, outFlagName, "", outFlagDescription)
	return packCommand
}

// tokenSettings is the resolved token-accounting configuration for one run.
type tokenSettings struct {
	enabled bool
	model   string
}

// resolveTokenSettings merges the tokens and model flags with the configured
// defaults; explicit flags win over configuration.
func resolveTokenSettings(command *cobra.Command, flagEnabled bool, flagModel string, configured config.TokenConfiguration) tokenSettings {
	resolved := tokenSettings{enabled: flagEnabled, model: flagModel}
	if !command.Flags().Changed(tokensFlagName) && configured.Enabled != nil {
		resolved.enabled = *configured.Enabled
	}
	if !command.Flags().Changed(modelFlagName) && configured.Model != "" {
		resolved.model = configured.Model
	}
	return resolved
}

// runPackCommand renders the selection and delivers the document to the
// configured sinks: stdout or a file, optionally the clipboard, optionally a
// totals line on the error stream.
func runPackCommand(ctx context.Context, options packCommandOptions) error {
	document, processError := options.Aggregator.ProcessSelection(ctx, options.Selections, options.BasePath)
	if processError != nil {
		return processError
	}

	if options.OutputPath != "" {
		if writeError := os.WriteFile(options.OutputPath, []byte(document.Content), 0o644); writeError != nil {
			return fmt.Errorf(errorWriteDocumentFormat, options.OutputPath, writeError)
		}
	} else if options.Writer != nil {
		if _, writeError := io.WriteString(options.Writer, document.Content); writeError != nil {
			return writeError
		}
	}

	if options.CopyEnabled {
		if options.Clipboard == nil {
			return errors.New(clipboardServiceMissingMessage)
		}
		if copyError := options.Clipboard.Write(document.Content); copyError != nil {
			return copyError
		}
	}

	if options.TokensEnabled && options.ErrorWriter != nil {
		totals := document.Totals
		fmt.Fprintf(options.ErrorWriter, packTotalsFormat, totals.Files, utils.FormatFileSize(totals.Bytes), totals.Tokens, totals.Model)
	}
	return nil
}
